package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/choraleia/xide/pkg/event"
)

// Publisher receives the facade's events. *event.Emitter implements it.
type Publisher interface {
	Emit(ev event.Event)
}

// RecentStore remembers recently opened files and folders.
type RecentStore interface {
	RecordFile(ctx context.Context, path string) error
	RecordFolder(ctx context.Context, label string) error
}

// Options configures a Facade. At least one adapter is required.
type Options struct {
	Local       Adapter
	Remote      Adapter
	Environment Environment
	// Override forces a backend, as if the user had toggled it.
	Override BackendTag
	Events   Publisher
	Recent   RecentStore
	Logger   *slog.Logger
}

// Facade is the single entry point to the file system. It owns one
// HandleCache per adapter, picks the active backend through Detect, and
// retries a failed call at most once: on the same adapter after dropping a
// stale handle, or on the fallback adapter after a restriction or transport
// failure.
//
// Overlapping writes to the same path are not serialized; callers must not
// issue them.
type Facade struct {
	env      Environment
	events   Publisher
	recent   RecentStore
	logger   *slog.Logger
	adapters map[BackendTag]Adapter
	caches   map[BackendTag]*HandleCache

	mu          sync.Mutex
	override    BackendTag
	active      BackendTag
	watchCancel context.CancelFunc

	selecting atomic.Bool
}

func NewFacade(opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := &Facade{
		env:      opts.Environment,
		events:   opts.Events,
		recent:   opts.Recent,
		logger:   logger,
		adapters: make(map[BackendTag]Adapter),
		caches:   make(map[BackendTag]*HandleCache),
		override: opts.Override,
	}
	for _, a := range []Adapter{opts.Local, opts.Remote} {
		if a == nil {
			continue
		}
		cache := NewHandleCache(logger.With("backend", a.Tag()))
		a.Attach(cache)
		f.adapters[a.Tag()] = a
		f.caches[a.Tag()] = cache
	}
	return f
}

// Active returns the chosen backend, running detection if none is chosen yet.
func (f *Facade) Active() BackendTag {
	tag, _ := f.current()
	return tag
}

// Session returns the working directory of the active backend, or nil.
func (f *Facade) Session() *Session {
	_, a := f.current()
	if a == nil {
		return nil
	}
	return a.Session()
}

// Cache exposes the handle cache of a backend.
func (f *Facade) Cache(tag BackendTag) *HandleCache { return f.caches[tag] }

// Adapter returns the adapter registered for tag, or nil.
func (f *Facade) Adapter(tag BackendTag) Adapter { return f.adapters[tag] }

func (f *Facade) current() (BackendTag, Adapter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == "" {
		tag := Detect(f.env, f.override)
		if f.adapters[tag] == nil {
			tag = Fallback(tag)
		}
		f.active = tag
		f.logger.Info("Selected backend", "backend", tag)
	}
	return f.active, f.adapters[f.active]
}

func (f *Facade) switchTo(from, to BackendTag, reason string) {
	f.mu.Lock()
	if f.active != from {
		f.mu.Unlock()
		return
	}
	f.active = to
	f.mu.Unlock()
	f.logger.Warn("Switched backend", "from", from, "to", to, "reason", reason)
	f.emit(event.BackendSwitchedEvent{From: string(from), To: string(to), Reason: reason})
}

func (f *Facade) emit(ev event.Event) {
	if f.events != nil {
		f.events.Emit(ev)
	}
}

// dispatch runs op on the active adapter and applies the retry policy: a
// failed call is repeated at most once, either on the same adapter after
// dropping the stale handle of p or on the fallback adapter.
func dispatch[T any](f *Facade, name, p string, op func(Adapter) Result[T]) Result[T] {
	tag, a := f.current()
	if a == nil {
		return Fail[T](newError(KindInternal, "no backend is configured"))
	}
	if a.Session() == nil {
		return Fail[T](newError(KindNoActiveSession, "open a folder before %s", name)).annotate(tag)
	}

	res := op(a)
	if res.Success {
		return res.annotate(tag)
	}
	switch {
	case res.Kind == KindInvalidHandle:
		f.logger.Info("Retrying after stale handle", "op", name, "path", p, "backend", tag)
		f.caches[tag].Invalidate(p)
		res = op(a)

	case res.Kind.Fallback():
		fb := Fallback(tag)
		fa := f.adapters[fb]
		if fa == nil {
			break
		}
		f.caches[tag].Reset()
		if fa.Session() == nil {
			res.Solutions = append(DefaultSolutions(res.Kind, tag),
				fmt.Sprintf("Open a folder on the %s backend to continue there", fb))
			break
		}
		f.switchTo(tag, fb, "fallback after "+string(res.Kind))
		tag, a = fb, fa
		res = op(a)
	}
	if !res.Success {
		f.logger.Debug("Operation failed", "op", name, "path", p, "backend", tag, "kind", res.Kind, "message", res.Message)
	}
	return res.annotate(tag)
}

// SelectRoot establishes the working directory. Only one selection may be in
// flight. A restricted or unreachable backend hands the selection to the
// fallback once; if that succeeds the fallback becomes active.
func (f *Facade) SelectRoot(ctx context.Context) Result[RootInfo] {
	tag, a := f.current()
	if !f.selecting.CompareAndSwap(false, true) {
		return Fail[RootInfo](newError(KindOperationInProgress, "a folder selection is already in progress")).annotate(tag)
	}
	defer f.selecting.Store(false)
	if a == nil {
		return Fail[RootInfo](newError(KindInternal, "no backend is configured"))
	}

	f.stopWatch()
	res := a.SelectRoot(ctx)
	if !res.Success && res.Kind.Fallback() {
		fb := Fallback(tag)
		if fa := f.adapters[fb]; fa != nil {
			f.logger.Warn("Folder selection failed, trying fallback", "backend", tag, "fallback", fb, "kind", res.Kind)
			f.caches[tag].Reset()
			res = fa.SelectRoot(ctx)
			if res.Success {
				f.switchTo(tag, fb, "fallback after folder selection failure")
			}
			tag = fb
		}
	}
	if !res.Success {
		return res.annotate(tag)
	}

	f.emit(event.SessionOpenedEvent{Label: res.Payload.Label, Backend: string(tag), HostPath: res.Payload.HostPath})
	if f.recent != nil {
		if err := f.recent.RecordFolder(ctx, res.Payload.Label); err != nil {
			f.logger.Warn("Failed to record recent folder", "error", err)
		}
	}
	return res.annotate(tag)
}

// SwitchBackend makes tag the active backend at the user's request. All
// sessions end; path operations fail with NoActiveSession until SelectRoot
// succeeds again.
func (f *Facade) SwitchBackend(tag BackendTag) Result[Void] {
	if f.adapters[tag] == nil {
		return Fail[Void](newError(KindInvalidArgument, "backend %q is not available", tag))
	}
	f.stopWatch()
	f.mu.Lock()
	from := f.active
	f.override = tag
	f.active = tag
	f.mu.Unlock()

	for _, a := range f.adapters {
		a.EndSession()
	}
	f.logger.Info("Switched backend", "from", from, "to", tag, "reason", "user")
	f.emit(event.BackendSwitchedEvent{From: string(from), To: string(tag), Reason: "user"})
	return OK(Void{}).annotate(tag)
}

// List returns the entries of dir in presentation order (see SortEntries).
// Adapters report them in host order.
func (f *Facade) List(ctx context.Context, dir string) Result[[]Entry] {
	res := dispatch(f, "list", dir, func(a Adapter) Result[[]Entry] {
		return a.List(ctx, dir)
	})
	if res.Success {
		SortEntries(res.Payload)
	}
	return res
}

func (f *Facade) ReadFile(ctx context.Context, p string) Result[string] {
	return dispatch(f, "readFile", p, func(a Adapter) Result[string] {
		return a.ReadFile(ctx, p)
	})
}

func (f *Facade) WriteFile(ctx context.Context, p string, content string) Result[Void] {
	return dispatch(f, "writeFile", p, func(a Adapter) Result[Void] {
		return a.WriteFile(ctx, p, content)
	})
}

func (f *Facade) CreateFile(ctx context.Context, parent string, name string) Result[Entry] {
	res := dispatch(f, "createFile", parent, func(a Adapter) Result[Entry] {
		return a.CreateFile(ctx, parent, name)
	})
	f.changed(res.Success, res.Backend, parent)
	return res
}

func (f *Facade) CreateDirectory(ctx context.Context, parent string, name string) Result[Entry] {
	res := dispatch(f, "createDirectory", parent, func(a Adapter) Result[Entry] {
		return a.CreateDirectory(ctx, parent, name)
	})
	f.changed(res.Success, res.Backend, parent)
	return res
}

func (f *Facade) Delete(ctx context.Context, p string) Result[Void] {
	res := dispatch(f, "delete", p, func(a Adapter) Result[Void] {
		return a.Delete(ctx, p)
	})
	f.changed(res.Success, res.Backend, Parent(p))
	return res
}

func (f *Facade) Rename(ctx context.Context, p string, newName string) Result[Entry] {
	res := dispatch(f, "rename", p, func(a Adapter) Result[Entry] {
		return a.Rename(ctx, p, newName)
	})
	f.changed(res.Success, res.Backend, Parent(p))
	return res
}

func (f *Facade) Move(ctx context.Context, src string, targetDir string) Result[Entry] {
	res := dispatch(f, "move", src, func(a Adapter) Result[Entry] {
		return a.Move(ctx, src, targetDir)
	})
	f.changed(res.Success, res.Backend, Parent(src), targetDir)
	return res
}

func (f *Facade) Copy(ctx context.Context, src string, dst string) Result[Entry] {
	res := dispatch(f, "copy", src, func(a Adapter) Result[Entry] {
		return a.Copy(ctx, src, dst)
	})
	f.changed(res.Success, res.Backend, Parent(dst))
	return res
}

// OpenFile reads p and, on success, announces it to the editor.
func (f *Facade) OpenFile(ctx context.Context, p string) Result[string] {
	res := f.ReadFile(ctx, p)
	if !res.Success {
		return res
	}
	f.emit(event.FileOpenedEvent{FilePath: Clean(p), Content: res.Payload, Backend: string(res.Backend)})
	if f.recent != nil {
		if err := f.recent.RecordFile(ctx, Clean(p)); err != nil {
			f.logger.Warn("Failed to record recent file", "path", p, "error", err)
		}
	}
	return res
}

// Save is the editor's save request; it is forwarded to WriteFile as is.
func (f *Facade) Save(ctx context.Context, p string, content string) Result[Void] {
	return f.WriteFile(ctx, p, content)
}

// Watch starts forwarding change notifications below dir as
// DirectoryChanged events until ctx is done, the backend is switched, or a
// new folder is selected. Removed entries are dropped from the handle cache.
func (f *Facade) Watch(ctx context.Context, dir string) Result[Void] {
	return dispatch(f, "watch", dir, func(a Adapter) Result[Void] {
		w, ok := a.(Watcher)
		if !ok {
			return Fail[Void](newError(KindInvalidArgument, "the %s backend cannot watch directories", a.Tag()))
		}
		wctx, cancel := context.WithCancel(ctx)
		changes, err := w.Watch(wctx, dir)
		if err != nil {
			cancel()
			return Fail[Void](err)
		}
		f.mu.Lock()
		if f.watchCancel != nil {
			f.watchCancel()
		}
		f.watchCancel = cancel
		f.mu.Unlock()

		tag, cache := a.Tag(), f.caches[a.Tag()]
		go func() {
			for ch := range changes {
				if ch.Removal() || ch.Event == ChangeAdd || ch.Event == ChangeAddDir {
					cache.Invalidate(ch.Path)
				}
				f.emit(event.DirectoryChangedEvent{
					Path:    Parent(ch.Path),
					Target:  ch.Path,
					Change:  ch.Event,
					Backend: string(tag),
				})
			}
		}()
		return OK(Void{})
	})
}

func (f *Facade) stopWatch() {
	f.mu.Lock()
	cancel := f.watchCancel
	f.watchCancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *Facade) changed(ok bool, backend BackendTag, dirs ...string) {
	if !ok {
		return
	}
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		d = Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		f.emit(event.DirectoryChangedEvent{Path: d, Backend: string(backend)})
	}
}
