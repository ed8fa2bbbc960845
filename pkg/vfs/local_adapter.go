package vfs

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ErrPickerCancelled is returned by a DirectoryPicker when the user dismisses it.
var ErrPickerCancelled = errors.New("directory selection cancelled")

// DirectoryPicker asks the user for a directory and returns its host path.
type DirectoryPicker interface {
	PickDirectory(ctx context.Context) (string, error)
}

// PickerFunc adapts a function to DirectoryPicker.
type PickerFunc func(ctx context.Context) (string, error)

func (f PickerFunc) PickDirectory(ctx context.Context) (string, error) { return f(ctx) }

// localFile is the handle of a regular file: its directory plus its name.
type localFile struct {
	dir  *os.Root
	name string
}

// LocalAdapter serves the working directory through os.Root handles, which
// confine every access to the picked tree.
type LocalAdapter struct {
	env    Environment
	picker DirectoryPicker
	logger *slog.Logger

	mu      sync.RWMutex
	hostDir string
	session *Session
	cache   *HandleCache
}

func NewLocalAdapter(picker DirectoryPicker, env Environment, logger *slog.Logger) *LocalAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if env == nil {
		env = StaticEnvironment{Secure: true, Picker: picker != nil, Activation: true}
	}
	return &LocalAdapter{
		env:    env,
		picker: picker,
		logger: logger.With("backend", BackendLocal),
		cache:  NewHandleCache(logger),
	}
}

func (l *LocalAdapter) Tag() BackendTag { return BackendLocal }

func (l *LocalAdapter) Attach(cache *HandleCache) {
	l.mu.Lock()
	old := l.cache
	l.cache = cache
	l.mu.Unlock()
	if old != nil && old != cache {
		old.Reset()
	}
}

func (l *LocalAdapter) Session() *Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.session == nil {
		return nil
	}
	s := *l.session
	return &s
}

func (l *LocalAdapter) EndSession() {
	l.mu.Lock()
	l.hostDir = ""
	l.session = nil
	cache := l.cache
	l.mu.Unlock()
	cache.Reset()
}

// HostDir returns the host path of the session root.
func (l *LocalAdapter) HostDir() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hostDir
}

func (l *LocalAdapter) handles() *HandleCache {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache
}

func (l *LocalAdapter) SelectRoot(ctx context.Context) Result[RootInfo] {
	if !l.env.SecureContext() {
		return Fail[RootInfo](newError(KindSecurityRestriction,
			"the local file API requires a secure context").withSolutions(
			"Use the companion file service (remote backend)",
			"Serve the application over HTTPS or from localhost",
		))
	}
	if l.picker == nil || !l.env.PickerAvailable() {
		return Fail[RootInfo](newError(KindSecurityRestriction,
			"no native directory picker is available").withSolutions(
			"Use the companion file service (remote backend)",
		))
	}
	if !l.env.UserActivation() {
		return Fail[RootInfo](newError(KindSecurityRestriction,
			"directory selection must be triggered by a user gesture").withSolutions(
			"Select the folder again right after clicking the open button",
			"Use the companion file service (remote backend)",
		))
	}

	dir, err := l.picker.PickDirectory(ctx)
	if err != nil {
		if errors.Is(err, ErrPickerCancelled) || errors.Is(err, context.Canceled) {
			return Fail[RootInfo](wrapError(KindUserCancelled, err, "directory selection was cancelled"))
		}
		return Fail[RootInfo](localError(err, dir))
	}
	if strings.TrimSpace(dir) == "" {
		return Fail[RootInfo](newError(KindUserCancelled, "directory selection was cancelled"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Fail[RootInfo](localError(err, dir))
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return Fail[RootInfo](localError(err, abs))
	}

	cache := l.handles()
	cache.Reset()
	cache.Put(Root, root)

	label := filepath.Base(abs)
	l.mu.Lock()
	l.hostDir = abs
	l.session = &Session{Label: label, Backend: BackendLocal, BasePath: abs, Opened: time.Now()}
	l.mu.Unlock()

	l.logger.Info("Selected working directory", "path", abs)
	return OK(RootInfo{Label: label, Backend: BackendLocal, HostPath: abs})
}

func (l *LocalAdapter) RootHandle(ctx context.Context) (Handle, error) {
	dir := l.HostDir()
	if dir == "" {
		return nil, newError(KindNoActiveSession, "no working directory selected")
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, localError(err, Root)
	}
	return root, nil
}

func (l *LocalAdapter) ChildHandle(ctx context.Context, parent Handle, name string, create bool) (Handle, error) {
	dir, ok := parent.(*os.Root)
	if !ok {
		return nil, newError(KindNotFound, "parent of %s is not a directory", name)
	}
	fi, err := dir.Stat(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || !create {
			return nil, localError(err, name)
		}
		if err := dir.Mkdir(name, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, localError(err, name)
		}
		fi, err = dir.Stat(name)
		if err != nil {
			return nil, localError(err, name)
		}
	}
	if !fi.IsDir() {
		return localFile{dir: dir, name: name}, nil
	}
	sub, err := dir.OpenRoot(name)
	if err != nil {
		return nil, localError(err, name)
	}
	return sub, nil
}

func (l *LocalAdapter) requireSession() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.session == nil {
		return newError(KindNoActiveSession, "no working directory selected")
	}
	return nil
}

func (l *LocalAdapter) dirHandle(ctx context.Context, p string, create bool) (*os.Root, error) {
	if err := l.requireSession(); err != nil {
		return nil, err
	}
	h, err := l.handles().Resolve(ctx, l, p, create)
	if err != nil {
		return nil, l.failure(err, p)
	}
	root, ok := h.(*os.Root)
	if !ok {
		return nil, newError(KindInvalidArgument, "%s is not a directory", Clean(p))
	}
	return root, nil
}

func (l *LocalAdapter) fileHandle(ctx context.Context, p string) (localFile, error) {
	if err := l.requireSession(); err != nil {
		return localFile{}, err
	}
	h, err := l.handles().Resolve(ctx, l, p, false)
	if err != nil {
		return localFile{}, l.failure(err, p)
	}
	f, ok := h.(localFile)
	if !ok {
		return localFile{}, newError(KindInvalidArgument, "%s is a directory", Clean(p))
	}
	return f, nil
}

func (l *LocalAdapter) List(ctx context.Context, dir string) Result[[]Entry] {
	dir = Clean(dir)
	root, err := l.dirHandle(ctx, dir, false)
	if err != nil {
		return Fail[[]Entry](err)
	}
	f, err := root.Open(".")
	if err != nil {
		return Fail[[]Entry](l.failure(err, dir))
	}
	defer f.Close()
	des, err := f.ReadDir(-1)
	if err != nil {
		return Fail[[]Entry](l.failure(err, dir))
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if target, err := root.Stat(de.Name()); err == nil {
				info = target
			}
		}
		entries = append(entries, entryFromInfo(dir, de.Name(), info))
	}
	return OK(entries)
}

func (l *LocalAdapter) ReadFile(ctx context.Context, p string) Result[string] {
	p = Clean(p)
	lf, err := l.fileHandle(ctx, p)
	if err != nil {
		return Fail[string](err)
	}
	f, err := lf.dir.Open(lf.name)
	if err != nil {
		return Fail[string](l.failure(err, p))
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return Fail[string](localError(err, p))
	}
	return OK(string(b))
}

func (l *LocalAdapter) WriteFile(ctx context.Context, p string, content string) Result[Void] {
	p = Clean(p)
	lf, err := l.fileHandle(ctx, p)
	if err != nil {
		return Fail[Void](err)
	}
	f, err := lf.dir.OpenFile(lf.name, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return Fail[Void](l.failure(err, p))
	}
	if _, err := io.WriteString(f, content); err != nil {
		_ = f.Close()
		return Fail[Void](localError(err, p))
	}
	if err := f.Close(); err != nil {
		return Fail[Void](localError(err, p))
	}
	return OK(Void{})
}

func (l *LocalAdapter) CreateFile(ctx context.Context, parent string, name string) Result[Entry] {
	if err := ValidateName(name); err != nil {
		return Fail[Entry](err)
	}
	parent = Clean(parent)
	p := Join(parent, name)
	dir, err := l.dirHandle(ctx, parent, true)
	if err != nil {
		return Fail[Entry](err)
	}
	f, err := dir.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Fail[Entry](l.failure(err, p))
	}
	_ = f.Close()
	cache := l.handles()
	cache.Invalidate(p)
	cache.Put(p, localFile{dir: dir, name: name})
	return OK(Entry{Name: name, Path: p, Kind: KindFile, ModTime: time.Now()})
}

func (l *LocalAdapter) CreateDirectory(ctx context.Context, parent string, name string) Result[Entry] {
	if err := ValidateName(name); err != nil {
		return Fail[Entry](err)
	}
	parent = Clean(parent)
	p := Join(parent, name)
	dir, err := l.dirHandle(ctx, parent, true)
	if err != nil {
		return Fail[Entry](err)
	}
	if err := dir.Mkdir(name, 0o755); err != nil {
		return Fail[Entry](l.failure(err, p))
	}
	// A handle cached for a directory that was removed behind our back must
	// not shadow the new one.
	cache := l.handles()
	cache.Invalidate(p)
	if sub, err := dir.OpenRoot(name); err == nil {
		cache.Put(p, sub)
	}
	return OK(Entry{Name: name, Path: p, Kind: KindDirectory, ModTime: time.Now()})
}

func (l *LocalAdapter) Delete(ctx context.Context, p string) Result[Void] {
	p = Clean(p)
	if p == Root {
		return Fail[Void](newError(KindInvalidArgument, "the working directory root cannot be deleted"))
	}
	dir, err := l.dirHandle(ctx, Parent(p), false)
	if err != nil {
		return Fail[Void](err)
	}
	name := Base(p)
	fi, err := dir.Lstat(name)
	if err != nil {
		return Fail[Void](l.failure(err, p))
	}
	// Handles beneath p must be closed before the tree goes away.
	l.handles().Invalidate(p)
	if fi.IsDir() {
		err = removeTree(ctx, dir, name)
	} else {
		err = dir.Remove(name)
	}
	if err != nil {
		return Fail[Void](localError(err, p))
	}
	return OK(Void{})
}

func removeTree(ctx context.Context, parent *os.Root, name string) error {
	sub, err := parent.OpenRoot(name)
	if err != nil {
		return err
	}
	f, err := sub.Open(".")
	if err != nil {
		_ = sub.Close()
		return err
	}
	des, err := f.ReadDir(-1)
	_ = f.Close()
	if err != nil {
		_ = sub.Close()
		return err
	}
	for _, de := range des {
		if err := ctx.Err(); err != nil {
			_ = sub.Close()
			return err
		}
		if de.IsDir() {
			err = removeTree(ctx, sub, de.Name())
		} else {
			err = sub.Remove(de.Name())
		}
		if err != nil {
			_ = sub.Close()
			return err
		}
	}
	if err := sub.Close(); err != nil {
		return err
	}
	return parent.Remove(name)
}

func (l *LocalAdapter) Rename(ctx context.Context, p string, newName string) Result[Entry] {
	return renameTree(ctx, l, p, newName)
}

func (l *LocalAdapter) Move(ctx context.Context, src string, targetDir string) Result[Entry] {
	return moveTree(ctx, l, src, targetDir)
}

func (l *LocalAdapter) Copy(ctx context.Context, src string, dst string) Result[Entry] {
	return copyTree(ctx, l, src, dst)
}

// Watch streams changes below dir using the host's notification API.
func (l *LocalAdapter) Watch(ctx context.Context, dir string) (<-chan ChangeEvent, error) {
	base := l.HostDir()
	if base == "" {
		return nil, newError(KindNoActiveSession, "no working directory selected")
	}
	host := filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(Clean(dir), "/")))
	changes, err := WatchTree(ctx, host, l.logger)
	if err != nil {
		return nil, localError(err, dir)
	}
	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		for ch := range changes {
			logical, ok := HostRel(base, ch.Path)
			if !ok {
				continue
			}
			select {
			case out <- ChangeEvent{Event: ch.Event, Path: logical}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// failure classifies err from an operation on p. A missing target below a
// cached directory that no longer matches the directory on disk (removed, or
// removed and recreated) is reported as InvalidHandle once the stale handles
// are dropped, so the caller can resolve again.
func (l *LocalAdapter) failure(err error, p string) *Error {
	e := localError(err, p)
	if !e.Kind.Missing() || !l.dropStale(p) {
		return e
	}
	return wrapError(KindInvalidHandle, e, "stale directory handle for "+Clean(p))
}

// dropStale invalidates every cached directory handle on the way from p up
// to the session root whose directory is gone or replaced. It reports
// whether anything was dropped.
func (l *LocalAdapter) dropStale(p string) bool {
	cache := l.handles()
	h, ok := cache.Get(Root)
	if !ok {
		return false
	}
	root, ok := h.(*os.Root)
	if !ok {
		return false
	}
	dropped := false
	for dir := Clean(p); dir != Root; dir = Parent(dir) {
		h, ok := cache.Get(dir)
		if !ok {
			continue
		}
		sub, ok := h.(*os.Root)
		if !ok || sameDirectory(root, dir, sub) {
			continue
		}
		l.logger.Debug("Dropping stale directory handle", "path", dir)
		cache.Invalidate(dir)
		dropped = true
	}
	return dropped
}

// sameDirectory reports whether the directory at dir, resolved from root,
// is the one sub was opened on.
func sameDirectory(root *os.Root, dir string, sub *os.Root) bool {
	held, err := sub.Stat(".")
	if err != nil {
		return false
	}
	current, err := root.Stat(strings.TrimPrefix(dir, "/"))
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

func entryFromInfo(dir, name string, info fs.FileInfo) Entry {
	e := Entry{Name: name, Path: Join(dir, name), Kind: KindFile, ModTime: info.ModTime()}
	if info.IsDir() {
		e.Kind = KindDirectory
	} else {
		e.Size = info.Size()
	}
	return e
}

// localError classifies host errors. os.Root reports escapes (.., symlinks
// leaving the tree) with an unexported error, hence the message match.
func localError(err error, p string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case strings.Contains(err.Error(), "path escapes from parent"):
		return wrapError(KindSecurityRestriction, err, "access outside the working directory was refused: "+p).withSolutions(
			"Open the target folder as the working directory instead",
		)
	case errors.Is(err, syscall.EISDIR):
		return wrapError(KindInvalidArgument, err, p+" is a directory")
	case errors.Is(err, syscall.ENOTDIR):
		return wrapError(KindNotFound, err, p+" is not a directory")
	case errors.Is(err, fs.ErrNotExist):
		return wrapError(KindNotFound, err, "not found: "+p)
	case errors.Is(err, fs.ErrExist):
		return wrapError(KindAlreadyExists, err, "already exists: "+p)
	case errors.Is(err, fs.ErrPermission):
		return wrapError(KindPermissionDenied, err, "permission denied: "+p)
	case errors.Is(err, fs.ErrClosed):
		return wrapError(KindInvalidHandle, err, "stale handle: "+p)
	}
	return wrapError(KindInternal, err, "local file system error: "+p)
}

var (
	_ Adapter = (*LocalAdapter)(nil)
	_ Deriver = (*LocalAdapter)(nil)
	_ Watcher = (*LocalAdapter)(nil)
)
