package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/choraleia/xide/pkg/models"
	fsimpl "github.com/choraleia/xide/pkg/service/fs"
	"github.com/choraleia/xide/pkg/utils"
	"github.com/choraleia/xide/pkg/vfs"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrForbiddenRootWrite = errors.New("writing directly in the file system root is not allowed")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// maxReadSize bounds files served through /api/file/read.
const maxReadSize = 32 << 20

// FSService implements the companion file service operations on the
// configured FileSystem. Paths are absolute host paths.
type FSService struct {
	reg    *FSRegistry
	logger *slog.Logger
}

func NewFSService(reg *FSRegistry) *FSService {
	return &FSService{reg: reg, logger: utils.GetLogger()}
}

func (s *FSService) fs() fsimpl.FileSystem { return s.reg.FileSystem() }

// DirectoryExists reports whether p is an existing directory. Any failure
// reads as "does not exist".
func (s *FSService) DirectoryExists(ctx context.Context, p string) bool {
	fi, err := s.fs().Stat(ctx, p)
	return err == nil && fi.IsDir
}

// ReadDirectory lists p in backend order.
func (s *FSService) ReadDirectory(ctx context.Context, p string) ([]models.FileItem, error) {
	res, err := s.fs().ListDir(ctx, p)
	if err != nil {
		return nil, classify(err)
	}
	items := make([]models.FileItem, 0, len(res.Entries))
	for _, e := range res.Entries {
		it := models.FileItem{Name: e.Name, Path: e.Path, Type: models.ItemTypeFile, Size: e.Size, Modified: e.ModTime}
		if e.IsDir {
			it.Type = models.ItemTypeDirectory
			it.Size = 0
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *FSService) ReadFile(ctx context.Context, p string) (string, error) {
	fi, err := s.fs().Stat(ctx, p)
	if err != nil {
		return "", classify(err)
	}
	if fi.IsDir {
		return "", fmt.Errorf("%s is a directory: %w", p, ErrInvalidArgument)
	}
	if fi.Size > maxReadSize {
		return "", fmt.Errorf("%s is larger than %d bytes: %w", p, maxReadSize, ErrInvalidArgument)
	}
	r, err := s.fs().OpenRead(ctx, p)
	if err != nil {
		return "", classify(err)
	}
	defer func() { _ = r.Close() }()
	b, err := io.ReadAll(io.LimitReader(r, maxReadSize+1))
	if err != nil {
		return "", classify(err)
	}
	return string(b), nil
}

// WriteFile replaces the content of an existing file.
func (s *FSService) WriteFile(ctx context.Context, p string, content string) error {
	if fi, err := s.fs().Stat(ctx, p); err != nil {
		return classify(err)
	} else if fi.IsDir {
		return fmt.Errorf("%s is a directory: %w", p, ErrInvalidArgument)
	}
	return s.write(ctx, p, content, fsimpl.OpenWriteOptions{MustExist: true})
}

// CreateFile creates p with content, creating missing parent directories.
// An existing p is left untouched and reported as ErrAlreadyExists.
func (s *FSService) CreateFile(ctx context.Context, p string, content string) error {
	if err := s.fs().MkdirAll(ctx, s.dir(p)); err != nil {
		return classify(err)
	}
	return s.write(ctx, p, content, fsimpl.OpenWriteOptions{})
}

func (s *FSService) write(ctx context.Context, p, content string, opts fsimpl.OpenWriteOptions) error {
	w, err := s.fs().OpenWrite(ctx, p, opts)
	if err != nil {
		return classify(err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		_ = w.Close()
		return classify(err)
	}
	return classify(w.Close())
}

// CreateFolder creates p and any missing parents. Roots and their direct
// children are refused.
func (s *FSService) CreateFolder(ctx context.Context, p string) error {
	if vfs.IsProtectedRoot(p) {
		return fmt.Errorf("%s: %w", p, ErrForbiddenRootWrite)
	}
	if _, err := s.fs().Stat(ctx, p); err == nil {
		return fmt.Errorf("%s: %w", p, ErrAlreadyExists)
	}
	return classify(s.fs().MkdirAll(ctx, p))
}

// Delete removes a file or a directory tree.
func (s *FSService) Delete(ctx context.Context, p string) error {
	if vfs.IsProtectedRoot(p) {
		return fmt.Errorf("%s: %w", p, ErrForbiddenRootWrite)
	}
	if err := s.fs().RemoveAll(ctx, p); err != nil {
		return classify(err)
	}
	s.logger.Info("Deleted item", "path", p)
	return nil
}

// Rename moves oldPath to newPath. newPath must not exist.
func (s *FSService) Rename(ctx context.Context, oldPath, newPath string) error {
	return classify(s.fs().Rename(ctx, oldPath, newPath))
}

// Move moves source into the directory targetDir and returns the new path.
func (s *FSService) Move(ctx context.Context, source, targetDir string) (string, error) {
	fi, err := s.fs().Stat(ctx, targetDir)
	if err != nil {
		return "", classify(err)
	}
	if !fi.IsDir {
		return "", fmt.Errorf("%s is not a directory: %w", targetDir, ErrInvalidArgument)
	}
	dest := s.join(targetDir, s.base(source))
	if vfs.HostWithin(source, dest) {
		return "", fmt.Errorf("cannot move %s into itself: %w", source, ErrInvalidArgument)
	}
	if err := s.fs().Rename(ctx, source, dest); err != nil {
		return "", classify(err)
	}
	s.logger.Info("Moved item", "from", source, "to", dest)
	return dest, nil
}

// Exists reports whether anything is at p.
func (s *FSService) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.fs().Stat(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, iofs.ErrNotExist):
		return false, nil
	default:
		return false, classify(err)
	}
}

// Watch streams changes below p until ctx is done.
func (s *FSService) Watch(ctx context.Context, p string) (<-chan vfs.ChangeEvent, error) {
	hub := s.reg.Watches()
	if hub == nil {
		return nil, fmt.Errorf("directory watching is not supported by the %s storage backend: %w", s.reg.Type(), ErrInvalidArgument)
	}
	events, err := hub.Subscribe(ctx, p)
	if err != nil {
		return nil, classify(err)
	}
	return events, nil
}

// Pwd returns a best-effort default directory for the storage host.
func (s *FSService) Pwd(ctx context.Context) (string, error) {
	pfs, ok := s.fs().(fsimpl.PwdProvider)
	if !ok {
		return "/", nil
	}
	return pfs.Pwd(ctx)
}

func (s *FSService) posix() bool { return s.fs().Type() != fsimpl.EndpointLocal }

func (s *FSService) join(dir, name string) string {
	if s.posix() {
		return path.Join(dir, name)
	}
	return filepath.Join(dir, name)
}

func (s *FSService) dir(p string) string {
	if s.posix() {
		return path.Dir(p)
	}
	return filepath.Dir(p)
}

func (s *FSService) base(p string) string {
	if s.posix() {
		return path.Base(p)
	}
	return filepath.Base(p)
}

// classify tags backend errors with the service's sentinels, keeping the
// original message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch {
	case errors.Is(err, fsimpl.ErrRelativePath), errors.Is(err, fsimpl.ErrNotDirectory):
		sentinel = ErrInvalidArgument
	case errors.Is(err, iofs.ErrNotExist):
		sentinel = ErrNotFound
	case errors.Is(err, iofs.ErrExist):
		sentinel = ErrAlreadyExists
	case errors.Is(err, iofs.ErrPermission):
		sentinel = ErrPermissionDenied
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// ErrorCode maps an FSService error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return vfs.CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return vfs.CodeAlreadyExists
	case errors.Is(err, ErrPermissionDenied):
		return vfs.CodePermissionDenied
	case errors.Is(err, ErrForbiddenRootWrite):
		return vfs.CodeForbiddenRootWrite
	case errors.Is(err, ErrInvalidArgument):
		return vfs.CodeInvalidArgument
	default:
		return vfs.CodeInternal
	}
}
