package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/choraleia/xide/pkg/models"
	"github.com/pkg/errors"
)

// ErrPromptCancelled is returned by a PathPrompter when the user dismisses it.
var ErrPromptCancelled = errors.New("prompt cancelled")

// PathPrompter asks the user for a host path and for confirmations.
type PathPrompter interface {
	PromptPath(ctx context.Context, message, defaultPath string) (string, error)
	Confirm(ctx context.Context, message string) (bool, error)
}

// remoteHandle is the resolved host path of an entry. kind is empty until a
// listing reports it.
type remoteHandle struct {
	abs  string
	kind EntryKind
}

// RemoteAdapter serves the working directory through the companion file
// service. Handles are host paths; deriving one never touches the network.
type RemoteAdapter struct {
	client      *RemoteClient
	prompter    PathPrompter
	defaultPath string
	logger      *slog.Logger

	mu       sync.RWMutex
	basePath string
	session  *Session
	cache    *HandleCache
}

func NewRemoteAdapter(client *RemoteClient, prompter PathPrompter, defaultPath string, logger *slog.Logger) *RemoteAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteAdapter{
		client:      client,
		prompter:    prompter,
		defaultPath: defaultPath,
		logger:      logger.With("backend", BackendRemote),
		cache:       NewHandleCache(logger),
	}
}

func (r *RemoteAdapter) Tag() BackendTag { return BackendRemote }

// Client exposes the underlying service client.
func (r *RemoteAdapter) Client() *RemoteClient { return r.client }

func (r *RemoteAdapter) Attach(cache *HandleCache) {
	r.mu.Lock()
	old := r.cache
	r.cache = cache
	r.mu.Unlock()
	if old != nil && old != cache {
		old.Reset()
	}
}

func (r *RemoteAdapter) Session() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return nil
	}
	s := *r.session
	return &s
}

func (r *RemoteAdapter) EndSession() {
	r.mu.Lock()
	r.basePath = ""
	r.session = nil
	cache := r.cache
	r.mu.Unlock()
	cache.Reset()
}

// BasePath returns the host path of the session root.
func (r *RemoteAdapter) BasePath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.basePath
}

func (r *RemoteAdapter) handles() *HandleCache {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache
}

func (r *RemoteAdapter) SelectRoot(ctx context.Context) Result[RootInfo] {
	if r.prompter == nil {
		return Fail[RootInfo](newError(KindInvalidArgument, "no path prompt is available"))
	}
	p, err := r.prompter.PromptPath(ctx,
		"Enter the working directory path on the file service host (e.g. C:\\Projects or /home/user/projects)",
		r.defaultPath)
	if err != nil || strings.TrimSpace(p) == "" {
		return Fail[RootInfo](cancelled(err, "directory selection was cancelled"))
	}
	p = strings.TrimSpace(p)

	exists, err := r.client.DirectoryExists(ctx, p)
	if err != nil {
		return Fail[RootInfo](err)
	}
	if !exists {
		ok, err := r.prompter.Confirm(ctx, fmt.Sprintf("Directory %s does not exist. Create it?", p))
		if err != nil {
			return Fail[RootInfo](cancelled(err, "directory creation was cancelled"))
		}
		if !ok {
			return Fail[RootInfo](newError(KindNotFound, "directory does not exist: %s", p))
		}
		if IsProtectedRoot(p) {
			return Fail[RootInfo](forbiddenRoot(p))
		}
		if err := r.client.CreateFolder(ctx, p); err != nil {
			return Fail[RootInfo](err)
		}
	}

	label := hostBase(p)
	cache := r.handles()
	cache.Reset()
	r.mu.Lock()
	r.basePath = p
	r.session = &Session{Label: label, Backend: BackendRemote, BasePath: p, Opened: time.Now()}
	r.mu.Unlock()

	r.logger.Info("Selected working directory", "path", p)
	return OK(RootInfo{Label: label, Backend: BackendRemote, HostPath: p})
}

func (r *RemoteAdapter) RootHandle(ctx context.Context) (Handle, error) {
	base := r.BasePath()
	if base == "" {
		return nil, newError(KindNoActiveSession, "no working directory selected")
	}
	return remoteHandle{abs: base, kind: KindDirectory}, nil
}

func (r *RemoteAdapter) ChildHandle(ctx context.Context, parent Handle, name string, create bool) (Handle, error) {
	ph, ok := parent.(remoteHandle)
	if !ok || ph.kind == KindFile {
		return nil, newError(KindNotFound, "parent of %s is not a directory", name)
	}
	return remoteHandle{abs: HostJoin(ph.abs, name)}, nil
}

func (r *RemoteAdapter) hostPath(ctx context.Context, p string) (string, error) {
	if r.Session() == nil {
		return "", newError(KindNoActiveSession, "no working directory selected")
	}
	h, err := r.handles().Resolve(ctx, r, p, false)
	if err != nil {
		return "", err
	}
	rh, ok := h.(remoteHandle)
	if !ok {
		return "", newError(KindInvalidHandle, "unexpected handle for %s", Clean(p))
	}
	return rh.abs, nil
}

func (r *RemoteAdapter) List(ctx context.Context, dir string) Result[[]Entry] {
	dir = Clean(dir)
	abs, err := r.hostPath(ctx, dir)
	if err != nil {
		return Fail[[]Entry](err)
	}
	items, err := r.client.ReadDirectory(ctx, abs)
	if err != nil {
		return Fail[[]Entry](err)
	}
	cache := r.handles()
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		e := Entry{Name: it.Name, Path: Join(dir, it.Name), Kind: KindFile, Size: it.Size, ModTime: it.Modified}
		if it.Type == models.ItemTypeDirectory {
			e.Kind = KindDirectory
			e.Size = 0
		}
		cache.Put(e.Path, remoteHandle{abs: HostJoin(abs, it.Name), kind: e.Kind})
		entries = append(entries, e)
	}
	return OK(entries)
}

func (r *RemoteAdapter) ReadFile(ctx context.Context, p string) Result[string] {
	abs, err := r.hostPath(ctx, p)
	if err != nil {
		return Fail[string](err)
	}
	content, err := r.client.ReadFile(ctx, abs)
	if err != nil {
		return Fail[string](err)
	}
	return OK(content)
}

func (r *RemoteAdapter) WriteFile(ctx context.Context, p string, content string) Result[Void] {
	abs, err := r.hostPath(ctx, p)
	if err != nil {
		return Fail[Void](err)
	}
	if err := r.client.WriteFile(ctx, abs, content); err != nil {
		return Fail[Void](err)
	}
	return OK(Void{})
}

func (r *RemoteAdapter) CreateFile(ctx context.Context, parent string, name string) Result[Entry] {
	if err := ValidateName(name); err != nil {
		return Fail[Entry](err)
	}
	p := Join(parent, name)
	abs, err := r.hostPath(ctx, p)
	if err != nil {
		return Fail[Entry](err)
	}
	if err := r.client.CreateFile(ctx, abs, ""); err != nil {
		return Fail[Entry](err)
	}
	return OK(Entry{Name: name, Path: p, Kind: KindFile, ModTime: time.Now()})
}

func (r *RemoteAdapter) CreateDirectory(ctx context.Context, parent string, name string) Result[Entry] {
	if err := ValidateName(name); err != nil {
		return Fail[Entry](err)
	}
	p := Join(parent, name)
	abs, err := r.hostPath(ctx, p)
	if err != nil {
		return Fail[Entry](err)
	}
	if IsProtectedRoot(abs) {
		return Fail[Entry](forbiddenRoot(abs))
	}
	if err := r.client.CreateFolder(ctx, abs); err != nil {
		return Fail[Entry](err)
	}
	return OK(Entry{Name: name, Path: p, Kind: KindDirectory, ModTime: time.Now()})
}

func (r *RemoteAdapter) Delete(ctx context.Context, p string) Result[Void] {
	p = Clean(p)
	if p == Root {
		return Fail[Void](newError(KindInvalidArgument, "the working directory root cannot be deleted"))
	}
	abs, err := r.hostPath(ctx, p)
	if err != nil {
		return Fail[Void](err)
	}
	if err := r.client.Delete(ctx, abs); err != nil {
		return Fail[Void](err)
	}
	r.handles().Invalidate(p)
	return OK(Void{})
}

// Rename uses the service's native rename. The returned entry's kind comes
// from the last listing of the parent; an unlisted path costs one extra
// listing.
func (r *RemoteAdapter) Rename(ctx context.Context, p string, newName string) Result[Entry] {
	if err := ValidateName(newName); err != nil {
		return Fail[Entry](err)
	}
	p = Clean(p)
	if p == Root {
		return Fail[Entry](newError(KindInvalidArgument, "the working directory root cannot be renamed"))
	}
	dst := Join(Parent(p), newName)
	if dst == p {
		return statEntry(ctx, r, p)
	}

	kind := EntryKind("")
	if h, ok := r.handles().Get(p); ok {
		kind = h.(remoteHandle).kind
	}
	if kind == "" {
		st := statEntry(ctx, r, p)
		if !st.Success {
			return st
		}
		kind = st.Payload.Kind
	}

	oldAbs, err := r.hostPath(ctx, p)
	if err != nil {
		return Fail[Entry](err)
	}
	newAbs, err := r.hostPath(ctx, dst)
	if err != nil {
		return Fail[Entry](err)
	}
	if err := r.client.Rename(ctx, oldAbs, newAbs); err != nil {
		return Fail[Entry](err)
	}
	cache := r.handles()
	cache.Invalidate(p)
	cache.Invalidate(dst)
	return OK(Entry{Name: newName, Path: dst, Kind: kind, ModTime: time.Now()})
}

// stat asks the service whether p exists and whether it is a directory,
// instead of listing the parent.
func (r *RemoteAdapter) stat(ctx context.Context, p string) Result[Entry] {
	abs, err := r.hostPath(ctx, p)
	if err != nil {
		return Fail[Entry](err)
	}
	exists, err := r.client.Exists(ctx, abs)
	if err != nil {
		return Fail[Entry](err)
	}
	if !exists {
		return Fail[Entry](newError(KindNotFound, "not found: %s", p))
	}
	isDir, err := r.client.DirectoryExists(ctx, abs)
	if err != nil {
		return Fail[Entry](err)
	}
	kind := KindFile
	if isDir {
		kind = KindDirectory
	}
	return OK(Entry{Name: Base(p), Path: p, Kind: kind})
}

func (r *RemoteAdapter) Move(ctx context.Context, src string, targetDir string) Result[Entry] {
	return moveTree(ctx, r, src, targetDir)
}

func (r *RemoteAdapter) Copy(ctx context.Context, src string, dst string) Result[Entry] {
	return copyTree(ctx, r, src, dst)
}

// Watch consumes the service's change stream for dir. A stream the service
// refuses up front is returned as an error; later interruptions are logged.
func (r *RemoteAdapter) Watch(ctx context.Context, dir string) (<-chan ChangeEvent, error) {
	abs, err := r.hostPath(ctx, dir)
	if err != nil {
		return nil, err
	}
	base := r.BasePath()
	events, errs, err := r.client.Subscribe(ctx, abs)
	if err != nil {
		return nil, err
	}
	go func() {
		for err := range errs {
			kind := KindOf(err)
			if kind == KindBackendUnreachable || kind == KindInternal {
				r.logger.Warn("Watch stream interrupted, reconnecting", "path", dir, "error", err)
				continue
			}
			r.logger.Error("Watch stream ended", "path", dir, "kind", kind, "error", err)
		}
	}()
	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		for ev := range events {
			logical, ok := HostRel(base, ev.Path)
			if !ok {
				continue
			}
			select {
			case out <- ChangeEvent{Event: ev.Event, Path: logical}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func forbiddenRoot(abs string) *Error {
	return newError(KindForbiddenRootWrite,
		"creating folders directly in the file system root is not allowed: %s", abs).withSolutions(
		"Choose a subdirectory such as /home/user/projects or C:\\Projects",
	)
}

func cancelled(err error, msg string) *Error {
	if err != nil && !errors.Is(err, ErrPromptCancelled) && !errors.Is(err, context.Canceled) {
		return wrapError(KindInternal, err, msg)
	}
	return newError(KindUserCancelled, "%s", msg)
}

// hostBase is the last element of a host path in either separator style.
func hostBase(p string) string {
	t := strings.TrimRight(p, "/\\")
	if i := strings.LastIndexAny(t, "/\\"); i >= 0 {
		t = t[i+1:]
	}
	if t == "" {
		return p
	}
	return t
}

var (
	_ Adapter = (*RemoteAdapter)(nil)
	_ Deriver = (*RemoteAdapter)(nil)
	_ Watcher = (*RemoteAdapter)(nil)
)
