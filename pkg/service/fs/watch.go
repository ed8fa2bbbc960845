package fs

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/choraleia/xide/pkg/vfs"
)

// WatchHub shares one recursive watch per directory between subscribers.
// The watch stops when the last subscriber leaves.
type WatchHub struct {
	logger *slog.Logger

	mu      sync.Mutex
	watches map[string]*treeWatch
}

type treeWatch struct {
	cancel context.CancelFunc
	subs   map[uint64]chan vfs.ChangeEvent
	nextID uint64
}

const subscriberBuffer = 64

func NewWatchHub(logger *slog.Logger) *WatchHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchHub{logger: logger, watches: make(map[string]*treeWatch)}
}

// Subscribe streams changes below dir until ctx is done. A subscriber that
// falls behind loses events rather than stalling the others.
func (h *WatchHub) Subscribe(ctx context.Context, dir string) (<-chan vfs.ChangeEvent, error) {
	dir, err := normalizeHostAbs(dir)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	w, ok := h.watches[dir]
	if !ok {
		wctx, cancel := context.WithCancel(context.Background())
		events, err := vfs.WatchTree(wctx, dir, h.logger)
		if err != nil {
			cancel()
			h.mu.Unlock()
			return nil, err
		}
		w = &treeWatch{cancel: cancel, subs: make(map[uint64]chan vfs.ChangeEvent)}
		h.watches[dir] = w
		go h.fanOut(dir, w, events)
		h.logger.Info("Watching directory", "path", dir)
	}
	w.nextID++
	id := w.nextID
	ch := make(chan vfs.ChangeEvent, subscriberBuffer)
	w.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(dir, w, id)
	}()
	return ch, nil
}

func (h *WatchHub) fanOut(dir string, w *treeWatch, events <-chan vfs.ChangeEvent) {
	for ev := range events {
		h.mu.Lock()
		for _, ch := range w.subs {
			select {
			case ch <- ev:
			default:
				h.logger.Warn("Dropping watch event for slow subscriber", "path", dir, "event", ev.Event)
			}
		}
		h.mu.Unlock()
	}
	// The notifier stopped: end every subscription.
	h.mu.Lock()
	if h.watches[dir] == w {
		delete(h.watches, dir)
	}
	for id, ch := range w.subs {
		close(ch)
		delete(w.subs, id)
	}
	h.mu.Unlock()
}

func (h *WatchHub) unsubscribe(dir string, w *treeWatch, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := w.subs[id]
	if !ok {
		return
	}
	delete(w.subs, id)
	close(ch)
	if len(w.subs) == 0 {
		w.cancel()
		if h.watches[dir] == w {
			delete(h.watches, dir)
		}
		h.logger.Info("Stopped watching directory", "path", dir)
	}
}

// Close stops every watch.
func (h *WatchHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for dir, w := range h.watches {
		w.cancel()
		delete(h.watches, dir)
	}
}

// Watching reports whether dir currently has a live watch.
func (h *WatchHub) Watching(dir string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.watches[filepath.Clean(dir)]
	return ok
}
