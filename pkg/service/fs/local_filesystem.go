package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalFileSystem implements FileSystem for the host filesystem.
//
// NOTE: This is NOT sandboxed.
type LocalFileSystem struct{}

func NewLocalFileSystem() *LocalFileSystem { return &LocalFileSystem{} }

func (l *LocalFileSystem) Type() EndpointType { return EndpointLocal }

func (l *LocalFileSystem) ListDir(ctx context.Context, p string) (*ListDirResponse, error) {
	_ = ctx
	abs, err := normalizeHostAbs(p)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}

	des, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, FileEntry{
			Name:    de.Name(),
			Path:    filepath.Join(abs, de.Name()),
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			Mode:    info.Mode().String(),
			ModTime: info.ModTime(),
		})
	}
	return &ListDirResponse{Path: abs, Entries: entries}, nil
}

func (l *LocalFileSystem) Stat(ctx context.Context, p string) (*FileEntry, error) {
	_ = ctx
	abs, err := normalizeHostAbs(p)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	return &FileEntry{Name: filepath.Base(abs), Path: abs, IsDir: fi.IsDir(), Size: fi.Size(), Mode: fi.Mode().String(), ModTime: fi.ModTime()}, nil
}

func (l *LocalFileSystem) Mkdir(ctx context.Context, p string) error {
	_ = ctx
	abs, err := normalizeHostAbs(p)
	if err != nil {
		return err
	}
	return os.Mkdir(abs, 0o755)
}

func (l *LocalFileSystem) MkdirAll(ctx context.Context, p string) error {
	_ = ctx
	abs, err := normalizeHostAbs(p)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

func (l *LocalFileSystem) RemoveAll(ctx context.Context, p string) error {
	_ = ctx
	abs, err := normalizeHostAbs(p)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); err != nil {
		return err
	}
	return os.RemoveAll(abs)
}

func (l *LocalFileSystem) Rename(ctx context.Context, from string, to string) error {
	_ = ctx
	fromAbs, err := normalizeHostAbs(from)
	if err != nil {
		return err
	}
	toAbs, err := normalizeHostAbs(to)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(toAbs); err == nil {
		return &os.LinkError{Op: "rename", Old: fromAbs, New: toAbs, Err: os.ErrExist}
	}
	return os.Rename(fromAbs, toAbs)
}

func (l *LocalFileSystem) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	_ = ctx
	abs, err := normalizeHostAbs(p)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

func (l *LocalFileSystem) OpenWrite(ctx context.Context, p string, opts OpenWriteOptions) (io.WriteCloser, error) {
	_ = ctx
	abs, err := normalizeHostAbs(p)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(abs, writeFlags(opts), 0o644)
}

func (l *LocalFileSystem) Pwd(ctx context.Context) (string, error) {
	_ = ctx
	h, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(h) == "" {
		return string(filepath.Separator), nil
	}
	return h, nil
}

// Verify interface implementations
var _ FileSystem = (*LocalFileSystem)(nil)
var _ PwdProvider = (*LocalFileSystem)(nil)

func writeFlags(opts OpenWriteOptions) int {
	if opts.MustExist {
		return os.O_WRONLY | os.O_TRUNC
	}
	return os.O_WRONLY | os.O_CREATE | os.O_EXCL
}

func normalizeHostAbs(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || !filepath.IsAbs(p) {
		return "", fmt.Errorf("%q: %w", p, ErrRelativePath)
	}
	return filepath.Clean(p), nil
}
