// Package vfs is the file-system abstraction layer: one directory/file
// contract served by interchangeable backends.
//
// A Facade dispatches each call to the active Adapter (LocalAdapter over an
// os.Root directory handle, or RemoteAdapter over the companion HTTP file
// service), keeps one HandleCache per adapter, and retries once through the
// fallback chain when a backend is restricted or unreachable.
package vfs

import (
	"context"
	"time"
)

// EntryKind is the type of a file-system object.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// Entry describes one listed object. Path is logical: '/'-separated and
// relative to the session root, which is "/".
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Kind    EntryKind `json:"kind"`
	Size    int64     `json:"size,omitempty"`
	ModTime time.Time `json:"modTime,omitempty"`
}

func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// RootInfo describes a freshly selected working directory.
type RootInfo struct {
	Label    string     `json:"label"`
	Backend  BackendTag `json:"backend"`
	HostPath string     `json:"hostPath,omitempty"`
}

// Session is the working directory an adapter is bound to.
type Session struct {
	Label    string
	Backend  BackendTag
	BasePath string
	Opened   time.Time
}

// Adapter is the operation set every backend implements.
type Adapter interface {
	Tag() BackendTag

	// Attach hands the adapter the cache the facade owns for it.
	Attach(cache *HandleCache)
	// Session returns the bound working directory, or nil.
	Session() *Session
	// EndSession unbinds the working directory and drops all handles.
	EndSession()

	SelectRoot(ctx context.Context) Result[RootInfo]
	List(ctx context.Context, dir string) Result[[]Entry]
	ReadFile(ctx context.Context, p string) Result[string]
	WriteFile(ctx context.Context, p string, content string) Result[Void]
	CreateFile(ctx context.Context, parent string, name string) Result[Entry]
	CreateDirectory(ctx context.Context, parent string, name string) Result[Entry]
	Delete(ctx context.Context, p string) Result[Void]
	Rename(ctx context.Context, p string, newName string) Result[Entry]
	Move(ctx context.Context, src string, targetDir string) Result[Entry]
	Copy(ctx context.Context, src string, dst string) Result[Entry]
}

// ChangeEvent is one notification from a directory watch. Event uses the
// companion service vocabulary: add, addDir, change, unlink, unlinkDir.
type ChangeEvent struct {
	Event string `json:"event"`
	Path  string `json:"path"`
}

const (
	ChangeAdd       = "add"
	ChangeAddDir    = "addDir"
	ChangeModify    = "change"
	ChangeUnlink    = "unlink"
	ChangeUnlinkDir = "unlinkDir"
)

// Removal reports whether the change removed an entry.
func (e ChangeEvent) Removal() bool {
	return e.Event == ChangeUnlink || e.Event == ChangeUnlinkDir
}

// Watcher is implemented by adapters that can stream change notifications.
// The channel closes when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, dir string) (<-chan ChangeEvent, error)
}
