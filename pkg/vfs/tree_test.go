package vfs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/choraleia/xide/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLister struct {
	mu      sync.Mutex
	listing map[string][]Entry
	calls   map[string]int
}

func newCountingLister() *countingLister {
	return &countingLister{listing: make(map[string][]Entry), calls: make(map[string]int)}
}

func (l *countingLister) add(dir string, entries ...Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listing[dir] = append(l.listing[dir], entries...)
}

func (l *countingLister) List(_ context.Context, dir string) Result[[]Entry] {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[dir]++
	entries, ok := l.listing[dir]
	if !ok {
		return Fail[[]Entry](newError(KindNotFound, "not found: %s", dir))
	}
	return OK(append([]Entry(nil), entries...))
}

func (l *countingLister) count(dir string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[dir]
}

func fileEntry(dir, name string) Entry { return Entry{Name: name, Path: Join(dir, name), Kind: KindFile} }
func dirEntry(parent, name string) Entry {
	return Entry{Name: name, Path: Join(parent, name), Kind: KindDirectory}
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestSortEntries(t *testing.T) {
	entries := []Entry{
		fileEntry("/", "b.txt"),
		fileEntry("/", ".env"),
		dirEntry("/", "src"),
		fileEntry("/", "A.txt"),
		dirEntry("/", ".git"),
		fileEntry("/", "a.txt"),
		dirEntry("/", "Docs"),
	}
	SortEntries(entries)
	assert.Equal(t, []string{".git", "Docs", "src", ".env", "A.txt", "a.txt", "b.txt"}, names(entries))
}

func TestTreeExpandIsLazy(t *testing.T) {
	ctx := context.Background()
	src := newCountingLister()
	src.add("/", fileEntry("/", "a.txt"), dirEntry("/", "sub"))
	src.add("/sub", fileEntry("/sub", "b.txt"))
	tree := NewTree(src)

	root := tree.Expand(ctx, "/")
	require.True(t, root.Success)
	assert.Equal(t, []string{"sub", "a.txt"}, names(root.Payload))
	assert.False(t, tree.Cached("/sub"))

	again := tree.Expand(ctx, "/")
	require.True(t, again.Success)
	assert.Equal(t, 1, src.count("/"))

	sub := tree.Expand(ctx, "/sub")
	require.True(t, sub.Success)
	assert.Equal(t, []string{"b.txt"}, names(sub.Payload))
	assert.Equal(t, 1, src.count("/sub"))

	tree.Refresh(ctx, "/")
	assert.Equal(t, 2, src.count("/"))
}

func TestTreeRows(t *testing.T) {
	ctx := context.Background()
	src := newCountingLister()
	src.add("/", fileEntry("/", "a.txt"), dirEntry("/", "sub"))
	src.add("/sub", fileEntry("/sub", "b.txt"))
	tree := NewTree(src)

	tree.Expand(ctx, "/")
	rows := tree.Rows()
	require.Len(t, rows, 2)
	assert.False(t, rows[0].Expanded)

	tree.Expand(ctx, "/sub")
	rows = tree.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "sub", rows[0].Name)
	assert.True(t, rows[0].Expanded)
	assert.Equal(t, "b.txt", rows[1].Name)
	assert.Equal(t, 1, rows[1].Depth)
	assert.Equal(t, "a.txt", rows[2].Name)
	assert.Equal(t, 0, rows[2].Depth)

	tree.Collapse("/sub")
	assert.Len(t, tree.Rows(), 2)
	assert.True(t, tree.Cached("/sub"))
}

func TestTreeExpandFailure(t *testing.T) {
	tree := NewTree(newCountingLister())
	res := tree.Expand(context.Background(), "/missing")
	assert.Equal(t, KindNotFound, res.Kind)
	assert.False(t, tree.Cached("/missing"))
}

func TestTreeFollow(t *testing.T) {
	ctx := context.Background()
	src := newCountingLister()
	src.add("/", dirEntry("/", "sub"))
	src.add("/sub", fileEntry("/sub", "b.txt"))
	tree := NewTree(src)
	em := event.NewEmitter()
	stop := tree.Follow(em)

	tree.Expand(ctx, "/")
	tree.Expand(ctx, "/sub")

	em.Emit(event.DirectoryChangedEvent{Path: "/sub"})
	assert.True(t, tree.Cached("/"))
	assert.False(t, tree.Cached("/sub"))

	tree.Expand(ctx, "/sub")
	assert.Equal(t, 2, src.count("/sub"))

	em.Emit(event.SessionOpenedEvent{Label: "other"})
	assert.False(t, tree.Cached("/"))

	stop()
	tree.Expand(ctx, "/")
	em.Emit(event.BackendSwitchedEvent{From: "local", To: "remote"})
	assert.True(t, tree.Cached("/"))
}

func TestTreeOverLocalSession(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(tmp, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "sub", "b.txt"), []byte("world"), 0o644))

	em := event.NewEmitter()
	f := NewFacade(Options{
		Local:       NewLocalAdapter(fixedPicker(tmp), nil, nil),
		Environment: StaticEnvironment{Secure: true, Picker: true, Activation: true},
		Events:      em,
	})
	tree := NewTree(f)
	tree.Follow(em)

	require.True(t, f.SelectRoot(ctx).Success)

	root := tree.Expand(ctx, "/")
	require.True(t, root.Success, root.Message)
	assert.Equal(t, []string{"sub", "a.txt"}, names(root.Payload))
	assert.Equal(t, KindDirectory, root.Payload[0].Kind)

	sub := tree.Expand(ctx, "/sub")
	require.True(t, sub.Success)
	assert.Equal(t, []string{"b.txt"}, names(sub.Payload))

	require.True(t, f.CreateFile(ctx, "/sub", "c.txt").Success)
	assert.False(t, tree.Cached("/sub"))
	sub = tree.Expand(ctx, "/sub")
	require.True(t, sub.Success)
	assert.Equal(t, []string{"b.txt", "c.txt"}, names(sub.Payload))
}
