package fs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"
)

// SFTPFileSystem implements FileSystem on the host behind an SSHPool. A
// fresh client is taken from the pool for every call so a dropped connection
// is redialed transparently.
type SFTPFileSystem struct {
	pool *SSHPool
}

func NewSFTPFileSystem(pool *SSHPool) (*SFTPFileSystem, error) {
	if pool == nil {
		return nil, fmt.Errorf("ssh pool is nil")
	}
	return &SFTPFileSystem{pool: pool}, nil
}

func (s *SFTPFileSystem) Type() EndpointType { return EndpointSFTP }

func (s *SFTPFileSystem) client(ctx context.Context, p string) (*sftp.Client, string, error) {
	remotePath, err := normalizeRemotePath(p)
	if err != nil {
		return nil, "", err
	}
	cli, err := s.pool.GetSFTPClient(ctx)
	if err != nil {
		return nil, "", err
	}
	return cli, remotePath, nil
}

func (s *SFTPFileSystem) ListDir(ctx context.Context, p string) (*ListDirResponse, error) {
	cli, pathToList, err := s.client(ctx, p)
	if err != nil {
		return nil, err
	}
	fi, err := cli.Stat(pathToList)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", pathToList, ErrNotDirectory)
	}
	infos, err := cli.ReadDir(pathToList)
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, FileEntry{
			Name:    name,
			Path:    joinRemote(pathToList, name),
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			Mode:    fi.Mode().String(),
			ModTime: fi.ModTime(),
		})
	}
	return &ListDirResponse{Path: pathToList, Entries: entries}, nil
}

func (s *SFTPFileSystem) Stat(ctx context.Context, p string) (*FileEntry, error) {
	cli, remotePath, err := s.client(ctx, p)
	if err != nil {
		return nil, err
	}
	fi, err := cli.Stat(remotePath)
	if err != nil {
		return nil, err
	}
	return &FileEntry{
		Name:    path.Base(remotePath),
		Path:    remotePath,
		IsDir:   fi.IsDir(),
		Size:    fi.Size(),
		Mode:    fi.Mode().String(),
		ModTime: fi.ModTime(),
	}, nil
}

func (s *SFTPFileSystem) Mkdir(ctx context.Context, p string) error {
	cli, remotePath, err := s.client(ctx, p)
	if err != nil {
		return err
	}
	// SFTP reports an existing target as a generic failure.
	if _, err := cli.Lstat(remotePath); err == nil {
		return &fs.PathError{Op: "mkdir", Path: remotePath, Err: fs.ErrExist}
	}
	return cli.Mkdir(remotePath)
}

func (s *SFTPFileSystem) MkdirAll(ctx context.Context, p string) error {
	cli, remotePath, err := s.client(ctx, p)
	if err != nil {
		return err
	}
	return cli.MkdirAll(remotePath)
}

func (s *SFTPFileSystem) RemoveAll(ctx context.Context, p string) error {
	cli, remotePath, err := s.client(ctx, p)
	if err != nil {
		return err
	}
	return removeRemoteTree(cli, remotePath)
}

func removeRemoteTree(cli *sftp.Client, p string) error {
	fi, err := cli.Lstat(p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return cli.Remove(p)
	}
	children, err := cli.ReadDir(p)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := removeRemoteTree(cli, joinRemote(p, c.Name())); err != nil {
			return err
		}
	}
	return cli.RemoveDirectory(p)
}

func (s *SFTPFileSystem) Rename(ctx context.Context, from string, to string) error {
	cli, fromP, err := s.client(ctx, from)
	if err != nil {
		return err
	}
	toP, err := normalizeRemotePath(to)
	if err != nil {
		return err
	}
	if _, err := cli.Lstat(toP); err == nil {
		return &os.LinkError{Op: "rename", Old: fromP, New: toP, Err: fs.ErrExist}
	}
	return cli.Rename(fromP, toP)
}

func (s *SFTPFileSystem) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	cli, remotePath, err := s.client(ctx, p)
	if err != nil {
		return nil, err
	}
	return cli.Open(remotePath)
}

func (s *SFTPFileSystem) OpenWrite(ctx context.Context, p string, opts OpenWriteOptions) (io.WriteCloser, error) {
	cli, remotePath, err := s.client(ctx, p)
	if err != nil {
		return nil, err
	}
	return cli.OpenFile(remotePath, writeFlags(opts))
}

func (s *SFTPFileSystem) Pwd(ctx context.Context) (string, error) {
	cli, err := s.pool.GetSFTPClient(ctx)
	if err != nil {
		return "", err
	}
	wd, err := cli.Getwd()
	if err != nil || strings.TrimSpace(wd) == "" || !strings.HasPrefix(wd, "/") {
		return "/", nil
	}
	return wd, nil
}

var _ FileSystem = (*SFTPFileSystem)(nil)
var _ PwdProvider = (*SFTPFileSystem)(nil)

// joinRemote joins a directory and a base path, ensuring a single '/' separator.
func joinRemote(dir string, base string) string {
	if dir == "" {
		return "/" + strings.TrimPrefix(base, "/")
	}
	if base == "" {
		return dir
	}
	if strings.HasSuffix(dir, "/") {
		return dir + strings.TrimPrefix(base, "/")
	}
	return dir + "/" + strings.TrimPrefix(base, "/")
}

func normalizeRemotePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%q: %w", p, ErrRelativePath)
	}
	return path.Clean(p), nil
}
