package fs

import (
	"context"
	"errors"
	"io"
	"time"
)

// EndpointType identifies a filesystem implementation.
type EndpointType string

const (
	EndpointLocal EndpointType = "local"
	EndpointSFTP  EndpointType = "sftp"
)

var (
	// ErrRelativePath is returned for paths that are not absolute on the host.
	ErrRelativePath = errors.New("path must be absolute")
	ErrNotDirectory = errors.New("not a directory")
)

// FileEntry describes one file or directory.
//
// Path semantics:
//   - Paths are absolute host paths. Local paths keep the host's separator;
//     SFTP paths are POSIX.
//   - No backend performs root-mapping/sandboxing at this layer.
type FileEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
}

type ListDirResponse struct {
	Path    string      `json:"path"`
	Entries []FileEntry `json:"entries"`
}

// OpenWriteOptions selects how OpenWrite treats an existing file. By
// default the file must not exist yet.
type OpenWriteOptions struct {
	// MustExist truncates an existing file and fails if there is none.
	MustExist bool
}

// FileSystem abstracts file operations for local and remote backends.
//
// Errors wrap io/fs sentinels (fs.ErrNotExist, fs.ErrExist,
// fs.ErrPermission) where the backend reports them.
type FileSystem interface {
	Type() EndpointType
	ListDir(ctx context.Context, path string) (*ListDirResponse, error)
	Stat(ctx context.Context, path string) (*FileEntry, error)
	// Mkdir creates one directory. The parent must exist and the path must not.
	Mkdir(ctx context.Context, path string) error
	MkdirAll(ctx context.Context, path string) error
	// RemoveAll removes a file or a directory tree. The path must exist.
	RemoveAll(ctx context.Context, path string) error
	Rename(ctx context.Context, from string, to string) error

	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)
	OpenWrite(ctx context.Context, path string, opts OpenWriteOptions) (io.WriteCloser, error)
}

// Optional interface: implementations that can report a preferred starting directory.
// Returned path must be absolute.
type PwdProvider interface {
	Pwd(ctx context.Context) (string, error)
}
