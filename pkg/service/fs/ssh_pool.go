package fs

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHTarget describes the host behind the sftp storage backend.
type SSHTarget struct {
	Addr           string // host:port
	User           string
	Password       string
	KeyFile        string
	KeyPassphrase  string
	KnownHostsFile string
	Timeout        time.Duration
}

// SSHPool keeps one SSH connection to the storage host.
// It provides both the raw SSH client (for remote command execution)
// and an SFTP client (for file operations).
// The connection is checked for health and redialed if dead.
type SSHPool struct {
	target SSHTarget
	logger *slog.Logger

	mu    sync.Mutex
	entry *sshClientEntry

	// Cleanup management
	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

type sshClientEntry struct {
	ssh       *ssh.Client
	sftp      *sftp.Client // lazily created
	lastUsed  time.Time
	createdAt time.Time
}

const (
	sshCleanupInterval = 30 * time.Second
	sshMaxIdleTime     = 10 * time.Minute
	sshDefaultTimeout  = 30 * time.Second
)

func NewSSHPool(target SSHTarget, logger *slog.Logger) *SSHPool {
	if logger == nil {
		logger = slog.Default()
	}
	pool := &SSHPool{
		target:      target,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	// Start background cleanup goroutine
	go pool.cleanupLoop()
	return pool
}

// cleanupLoop periodically drops a dead or idle connection
func (p *SSHPool) cleanupLoop() {
	ticker := time.NewTicker(sshCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanupDeadConnection()
		case <-p.stopCleanup:
			return
		}
	}
}

func (p *SSHPool) cleanupDeadConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entry == nil {
		return
	}
	if !isConnectionAlive(p.entry.ssh) || time.Since(p.entry.lastUsed) > sshMaxIdleTime {
		p.logger.Debug("Closing SSH connection", "addr", p.target.Addr, "age", time.Since(p.entry.createdAt))
		closeEntry(p.entry)
		p.entry = nil
	}
}

// isConnectionAlive checks if SSH connection is still alive using a keepalive request
func isConnectionAlive(client *ssh.Client) bool {
	if client == nil {
		return false
	}
	_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

func closeEntry(entry *sshClientEntry) {
	if entry.sftp != nil {
		_ = entry.sftp.Close()
	}
	if entry.ssh != nil {
		_ = entry.ssh.Close()
	}
}

func (p *SSHPool) CloseAll() {
	p.cleanupOnce.Do(func() {
		close(p.stopCleanup)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entry != nil {
		closeEntry(p.entry)
		p.entry = nil
	}
}

// live returns the cached entry if its connection still answers. Callers
// hold p.mu.
func (p *SSHPool) live() *sshClientEntry {
	if p.entry == nil {
		return nil
	}
	if !isConnectionAlive(p.entry.ssh) {
		closeEntry(p.entry)
		p.entry = nil
		return nil
	}
	p.entry.lastUsed = time.Now()
	return p.entry
}

// GetSSHClient returns a connected SSH client, dialing if needed.
func (p *SSHPool) GetSSHClient(ctx context.Context) (*ssh.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.live(); e != nil {
		return e.ssh, nil
	}
	e, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	return e.ssh, nil
}

// GetSFTPClient returns an SFTP client on the pooled connection.
func (p *SSHPool) GetSFTPClient(ctx context.Context) (*sftp.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.live()
	if e == nil {
		var err error
		if e, err = p.dial(ctx); err != nil {
			return nil, err
		}
	}
	if e.sftp == nil {
		cli, err := sftp.NewClient(e.ssh)
		if err != nil {
			return nil, fmt.Errorf("create sftp client: %w", err)
		}
		e.sftp = cli
	}
	return e.sftp, nil
}

func (p *SSHPool) dial(ctx context.Context) (*sshClientEntry, error) {
	client, err := dialSSH(ctx, p.target)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	p.entry = &sshClientEntry{ssh: client, lastUsed: now, createdAt: now}
	p.logger.Info("Connected SSH storage host", "addr", p.target.Addr, "user", p.target.User)
	return p.entry, nil
}

func dialSSH(ctx context.Context, t SSHTarget) (*ssh.Client, error) {
	if strings.TrimSpace(t.Addr) == "" {
		return nil, fmt.Errorf("ssh host not specified")
	}
	if t.User == "" {
		return nil, fmt.Errorf("ssh username not specified")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if t.KnownHostsFile != "" {
		cb, err := knownhosts.New(t.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", t.KnownHostsFile, err)
		}
		hostKeyCallback = cb
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = sshDefaultTimeout
	}
	sshConfig := &ssh.ClientConfig{
		User:            t.User,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	if t.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(t.Password))
	}
	if t.KeyFile != "" {
		key, err := loadPrivateKeyFromFile(t.KeyFile, t.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("load private key %s: %w", t.KeyFile, err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(key))
	}
	if len(sshConfig.Auth) == 0 {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(""))
	}

	dialer := &net.Dialer{Timeout: sshConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh tcp: %w", err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, t.Addr, sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func loadPrivateKeyFromFile(path string, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePrivateKeyString(string(key), passphrase)
}

func parsePrivateKeyString(keyData string, passphrase string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey([]byte(keyData))
	if err == nil {
		return signer, nil
	}
	if passphrase == "" {
		return nil, err
	}
	return ssh.ParsePrivateKeyWithPassphrase([]byte(keyData), []byte(passphrase))
}
