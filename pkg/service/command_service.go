package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	fsimpl "github.com/choraleia/xide/pkg/service/fs"
	"github.com/choraleia/xide/pkg/utils"
	"golang.org/x/crypto/ssh"
)

// CommandResult is the outcome of one shell command. A non-zero exit is a
// result, not an error.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CommandService runs shell commands on the storage host: locally for the
// local backend, over the pooled SSH connection for sftp.
type CommandService struct {
	reg     *FSRegistry
	fs      *FSService
	timeout time.Duration
	logger  *slog.Logger
}

func NewCommandService(reg *FSRegistry, fs *FSService, timeout time.Duration) *CommandService {
	return &CommandService{reg: reg, fs: fs, timeout: timeout, logger: utils.GetLogger()}
}

// Execute runs command through the host shell in cwd (the service's working
// directory when empty). The call is bounded by the configured timeout.
func (s *CommandService) Execute(ctx context.Context, command, cwd string) (*CommandResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("command is empty: %w", ErrInvalidArgument)
	}
	cwd = strings.TrimSpace(cwd)
	if cwd != "" && !s.fs.DirectoryExists(ctx, cwd) {
		return nil, fmt.Errorf("working directory %s does not exist: %w", cwd, ErrInvalidArgument)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		res *CommandResult
		err error
	)
	if s.reg.Type() == fsimpl.EndpointSFTP {
		res, err = s.execViaSSH(ctx, command, cwd)
	} else {
		res, err = s.execLocal(ctx, command, cwd)
	}
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	s.logger.Info("Command finished", "command", command, "cwd", cwd, "exit_code", res.ExitCode, "duration", res.Duration)
	return res, nil
}

// execLocal executes a command through the local shell
func (s *CommandService) execLocal(ctx context.Context, command, cwd string) (*CommandResult, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = cwd
	// Grandchildren may hold the output pipes open after the shell is killed.
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("command timed out after %s: %w", s.timeout, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return nil, fmt.Errorf("start command: %w", err)
}

// execViaSSH executes a command on the storage host
func (s *CommandService) execViaSSH(ctx context.Context, command, cwd string) (*CommandResult, error) {
	client, err := s.reg.SSHClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("SSH connection failed: %w", err)
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("SSH session failed: %w", err)
	}
	defer session.Close()

	cmdStr := command
	if cwd != "" {
		cmdStr = "cd " + shellQuote(cwd) + " && " + command
	}
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmdStr) }()
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("command timed out after %s: %w", s.timeout, ctx.Err())
	case err = <-done:
	}

	res := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	return nil, fmt.Errorf("run command: %w", err)
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	// Simple quoting: wrap in single quotes and escape existing single quotes
	return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
}
