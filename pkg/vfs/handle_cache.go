package vfs

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Handle is an opaque, backend-specific capability for one entry.
type Handle any

// Deriver produces handles for a HandleCache. Adapters implement it.
type Deriver interface {
	// RootHandle opens the handle of the session root.
	RootHandle(ctx context.Context) (Handle, error)
	// ChildHandle derives the handle of name inside the directory handle parent.
	// With create set, a missing child is created as a directory.
	ChildHandle(ctx context.Context, parent Handle, name string, create bool) (Handle, error)
}

// HandleCache maps logical paths to handles for one session. It holds at most
// one handle per path and never re-derives a cached one.
type HandleCache struct {
	mu      sync.Mutex
	handles map[string]Handle
	logger  *slog.Logger
}

func NewHandleCache(logger *slog.Logger) *HandleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandleCache{handles: make(map[string]Handle), logger: logger}
}

// Get is a pure lookup.
func (c *HandleCache) Get(p string) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[Clean(p)]
	return h, ok
}

// Put stores h for p unless a handle is already cached there, in which case
// the cached handle wins and h is closed. It returns the handle now cached.
func (c *HandleCache) Put(p string, h Handle) Handle {
	p = Clean(p)
	c.mu.Lock()
	if existing, ok := c.handles[p]; ok {
		c.mu.Unlock()
		if existing != h {
			closeHandle(h)
		}
		return existing
	}
	c.handles[p] = h
	c.mu.Unlock()
	return h
}

// Resolve returns the handle for p, deriving missing segments from the
// nearest cached ancestor. Missing directories along p, p included, are
// created only when create is set; reads never create. Without create a
// missing intermediate segment fails with PathNotFound and a missing final
// segment keeps the deriver's kind.
func (c *HandleCache) Resolve(ctx context.Context, d Deriver, p string, create bool) (Handle, error) {
	p = Clean(p)
	if h, ok := c.Get(p); ok {
		return h, nil
	}

	segs := Segments(p)
	start := len(segs)
	var cur Handle
	for ; start >= 0; start-- {
		prefix := Root
		if start > 0 {
			prefix = "/" + strings.Join(segs[:start], "/")
		}
		if h, ok := c.Get(prefix); ok {
			cur = h
			break
		}
	}
	if start < 0 {
		h, err := d.RootHandle(ctx)
		if err != nil {
			return nil, err
		}
		cur = c.Put(Root, h)
		start = 0
	}

	for i := start; i < len(segs); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		child := "/" + strings.Join(segs[:i+1], "/")
		h, err := d.ChildHandle(ctx, cur, segs[i], create)
		if err != nil {
			if i < len(segs)-1 && KindOf(err).Missing() {
				return nil, wrapError(KindPathNotFound, err, "path not found: "+child)
			}
			return nil, err
		}
		cur = c.Put(child, h)
	}
	return cur, nil
}

// Invalidate drops p and every cached descendant.
func (c *HandleCache) Invalidate(p string) {
	p = Clean(p)
	c.mu.Lock()
	var dropped []Handle
	for k, h := range c.handles {
		if IsWithin(p, k) {
			dropped = append(dropped, h)
			delete(c.handles, k)
		}
	}
	c.mu.Unlock()
	for _, h := range dropped {
		closeHandle(h)
	}
	if len(dropped) > 0 {
		c.logger.Debug("Invalidated handles", "path", p, "count", len(dropped))
	}
}

// Reset clears the cache.
func (c *HandleCache) Reset() {
	c.Invalidate(Root)
}

// Paths lists cached paths in sorted order.
func (c *HandleCache) Paths() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.handles))
	for k := range c.handles {
		out = append(out, k)
	}
	c.mu.Unlock()
	sort.Strings(out)
	return out
}

func closeHandle(h Handle) {
	if cl, ok := h.(io.Closer); ok {
		_ = cl.Close()
	}
}
