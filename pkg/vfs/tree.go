package vfs

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/choraleia/xide/pkg/event"
)

// Lister is the part of the facade the tree needs.
type Lister interface {
	List(ctx context.Context, dir string) Result[[]Entry]
}

// SortEntries orders entries for display: directories first, dot-prefixed
// names before the rest, then case-insensitively by name. Exact name breaks
// ties so the order is total.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return lessEntry(entries[i], entries[j])
	})
}

func lessEntry(a, b Entry) bool {
	if a.IsDir() != b.IsDir() {
		return a.IsDir()
	}
	aDot, bDot := strings.HasPrefix(a.Name, "."), strings.HasPrefix(b.Name, ".")
	if aDot != bDot {
		return aDot
	}
	al, bl := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if al != bl {
		return al < bl
	}
	return a.Name < b.Name
}

// Row is one visible line of the projected tree.
type Row struct {
	Entry
	Depth    int
	Expanded bool
}

// Tree projects listings into a lazily expanded directory tree. A
// directory's children are listed on first expansion and kept until the
// directory is refreshed or the session resets.
type Tree struct {
	src Lister

	mu       sync.Mutex
	children map[string][]Entry
	expanded map[string]bool
}

func NewTree(src Lister) *Tree {
	t := &Tree{src: src}
	t.Reset()
	return t
}

// Reset forgets every cached listing and collapses everything.
func (t *Tree) Reset() {
	t.mu.Lock()
	t.children = make(map[string][]Entry)
	t.expanded = map[string]bool{Root: true}
	t.mu.Unlock()
}

// Expand marks dir expanded and returns its ordered children, listing them
// only if they are not cached.
func (t *Tree) Expand(ctx context.Context, dir string) Result[[]Entry] {
	dir = Clean(dir)
	t.mu.Lock()
	cached, ok := t.children[dir]
	t.mu.Unlock()
	if ok {
		t.mu.Lock()
		t.expanded[dir] = true
		t.mu.Unlock()
		return OK(cached)
	}
	return t.load(ctx, dir)
}

// Refresh re-lists dir regardless of the cache.
func (t *Tree) Refresh(ctx context.Context, dir string) Result[[]Entry] {
	return t.load(ctx, Clean(dir))
}

func (t *Tree) load(ctx context.Context, dir string) Result[[]Entry] {
	res := t.src.List(ctx, dir)
	if !res.Success {
		return res
	}
	entries := append([]Entry(nil), res.Payload...)
	SortEntries(entries)
	t.mu.Lock()
	t.children[dir] = entries
	t.expanded[dir] = true
	t.mu.Unlock()
	res.Payload = entries
	return res
}

// Collapse hides dir's children but keeps them cached.
func (t *Tree) Collapse(dir string) {
	t.mu.Lock()
	delete(t.expanded, Clean(dir))
	t.mu.Unlock()
}

// Invalidate drops the cached listing of dir and of everything below it.
func (t *Tree) Invalidate(dir string) {
	dir = Clean(dir)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.children {
		if IsWithin(dir, k) {
			delete(t.children, k)
		}
	}
}

// Cached reports whether dir's children are cached.
func (t *Tree) Cached(dir string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.children[Clean(dir)]
	return ok
}

// Rows flattens the expanded part of the tree, depth-first, for rendering.
func (t *Tree) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	var rows []Row
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		for _, e := range t.children[dir] {
			open := e.IsDir() && t.expanded[e.Path]
			rows = append(rows, Row{Entry: e, Depth: depth, Expanded: open})
			if open {
				walk(e.Path, depth+1)
			}
		}
	}
	walk(Root, 0)
	return rows
}

// Follow keeps the tree in step with emitter: changed directories are
// dropped from the cache and a new session or backend resets it. The
// returned function unsubscribes.
func (t *Tree) Follow(em *event.Emitter) func() {
	offChanged := em.On(event.DirectoryChanged, func(ev event.Event) {
		if dc, ok := ev.(event.DirectoryChangedEvent); ok {
			t.Invalidate(dc.Path)
		}
	})
	offSession := em.On(event.SessionOpened, func(event.Event) { t.Reset() })
	offBackend := em.On(event.BackendSwitched, func(event.Event) { t.Reset() })
	return func() {
		offChanged()
		offSession()
		offBackend()
	}
}
