package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/choraleia/xide/pkg/config"
	fsimpl "github.com/choraleia/xide/pkg/service/fs"
	"golang.org/x/crypto/ssh"
)

// FSRegistry builds the FileSystem served by the companion service from the
// storage section of the config.
//
// Keeping this in the service package avoids import cycles and allows using
// shared pools owned by filesystem implementations (e.g. SSHPool).
type FSRegistry struct {
	fs      fsimpl.FileSystem
	sshPool *fsimpl.SSHPool
	hub     *fsimpl.WatchHub
}

func NewFSRegistry(cfg *config.AppConfig, logger *slog.Logger) (*FSRegistry, error) {
	reg := &FSRegistry{hub: fsimpl.NewWatchHub(logger)}
	switch cfg.StorageBackend() {
	case config.StorageLocal:
		reg.fs = fsimpl.NewLocalFileSystem()
	case config.StorageSFTP:
		sc := cfg.Storage.SFTP
		keyFile, err := config.ExpandHome(sc.KeyFile)
		if err != nil {
			return nil, err
		}
		knownHosts, err := config.ExpandHome(sc.KnownHostsFile)
		if err != nil {
			return nil, err
		}
		reg.sshPool = fsimpl.NewSSHPool(fsimpl.SSHTarget{
			Addr:           cfg.SFTPAddr(),
			User:           sc.User,
			Password:       sc.Password,
			KeyFile:        keyFile,
			KeyPassphrase:  sc.KeyPassphrase,
			KnownHostsFile: knownHosts,
			Timeout:        cfg.RequestTimeout(),
		}, logger)
		sftpFS, err := fsimpl.NewSFTPFileSystem(reg.sshPool)
		if err != nil {
			return nil, err
		}
		reg.fs = sftpFS
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend())
	}
	return reg, nil
}

// NewLocalFSRegistry serves the host filesystem.
func NewLocalFSRegistry(logger *slog.Logger) *FSRegistry {
	return &FSRegistry{fs: fsimpl.NewLocalFileSystem(), hub: fsimpl.NewWatchHub(logger)}
}

func (r *FSRegistry) FileSystem() fsimpl.FileSystem { return r.fs }

func (r *FSRegistry) Type() fsimpl.EndpointType { return r.fs.Type() }

// Watches is nil when the backend has no change notification.
func (r *FSRegistry) Watches() *fsimpl.WatchHub {
	if r.fs.Type() != fsimpl.EndpointLocal {
		return nil
	}
	return r.hub
}

// SSHClient returns the storage host's SSH connection for command execution.
func (r *FSRegistry) SSHClient(ctx context.Context) (*ssh.Client, error) {
	if r.sshPool == nil {
		return nil, fmt.Errorf("storage backend %s has no ssh connection", r.fs.Type())
	}
	return r.sshPool.GetSSHClient(ctx)
}

func (r *FSRegistry) Close() {
	r.hub.Close()
	if r.sshPool != nil {
		r.sshPool.CloseAll()
	}
}
