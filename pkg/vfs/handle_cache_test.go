package vfs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle records whether the cache closed it.
type fakeHandle struct {
	path   string
	closed atomic.Bool
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// fakeDeriver serves a fixed set of existing directories and counts every
// derivation.
type fakeDeriver struct {
	mu       sync.Mutex
	existing map[string]bool
	created  []string
	derived  map[string]int
}

func newFakeDeriver(dirs ...string) *fakeDeriver {
	d := &fakeDeriver{existing: map[string]bool{Root: true}, derived: make(map[string]int)}
	for _, dir := range dirs {
		d.existing[dir] = true
	}
	return d
}

func (d *fakeDeriver) RootHandle(ctx context.Context) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.derived[Root]++
	return &fakeHandle{path: Root}, nil
}

func (d *fakeDeriver) ChildHandle(ctx context.Context, parent Handle, name string, create bool) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := Join(parent.(*fakeHandle).path, name)
	d.derived[p]++
	if !d.existing[p] {
		if !create {
			return nil, newError(KindNotFound, "not found: %s", p)
		}
		d.existing[p] = true
		d.created = append(d.created, p)
	}
	return &fakeHandle{path: p}, nil
}

func (d *fakeDeriver) count(p string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.derived[p]
}

func TestHandleCacheResolveDerivesOnce(t *testing.T) {
	ctx := context.Background()
	d := newFakeDeriver("/a", "/a/b")
	c := NewHandleCache(nil)

	h1, err := c.Resolve(ctx, d, "/a/b", false)
	require.NoError(t, err)
	h2, err := c.Resolve(ctx, d, "a/b/", false)
	require.NoError(t, err)

	assert.Same(t, h1.(*fakeHandle), h2.(*fakeHandle))
	assert.Equal(t, 1, d.count(Root))
	assert.Equal(t, 1, d.count("/a"))
	assert.Equal(t, 1, d.count("/a/b"))
	assert.Equal(t, []string{"/", "/a", "/a/b"}, c.Paths())
}

func TestHandleCacheResolveStartsFromNearestAncestor(t *testing.T) {
	ctx := context.Background()
	d := newFakeDeriver("/a", "/a/b", "/a/c")
	c := NewHandleCache(nil)

	_, err := c.Resolve(ctx, d, "/a/b", false)
	require.NoError(t, err)
	_, err = c.Resolve(ctx, d, "/a/c", false)
	require.NoError(t, err)

	assert.Equal(t, 1, d.count(Root))
	assert.Equal(t, 1, d.count("/a"))
	assert.Equal(t, 1, d.count("/a/c"))
}

func TestHandleCacheReadNeverCreates(t *testing.T) {
	ctx := context.Background()
	d := newFakeDeriver()
	c := NewHandleCache(nil)

	_, err := c.Resolve(ctx, d, "/missing/child", false)
	assert.Equal(t, KindPathNotFound, KindOf(err))

	_, err = c.Resolve(ctx, d, "/missing", false)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Empty(t, d.created)
}

func TestHandleCacheCreatesWhenAsked(t *testing.T) {
	ctx := context.Background()
	d := newFakeDeriver()
	c := NewHandleCache(nil)

	_, err := c.Resolve(ctx, d, "/x/y/z", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"/x", "/x/y", "/x/y/z"}, d.created)
}

func TestHandleCacheInvalidateDropsDescendants(t *testing.T) {
	ctx := context.Background()
	d := newFakeDeriver("/a", "/a/b", "/ab")
	c := NewHandleCache(nil)

	hb, err := c.Resolve(ctx, d, "/a/b", false)
	require.NoError(t, err)
	hab, err := c.Resolve(ctx, d, "/ab", false)
	require.NoError(t, err)

	c.Invalidate("/a")

	assert.Equal(t, []string{"/", "/ab"}, c.Paths())
	assert.True(t, hb.(*fakeHandle).closed.Load())
	assert.False(t, hab.(*fakeHandle).closed.Load())

	_, err = c.Resolve(ctx, d, "/a/b", false)
	require.NoError(t, err)
	assert.Equal(t, 2, d.count("/a/b"))
}

func TestHandleCachePutKeepsExisting(t *testing.T) {
	c := NewHandleCache(nil)
	first := &fakeHandle{path: "/f"}
	second := &fakeHandle{path: "/f"}

	assert.Same(t, first, c.Put("/f", first).(*fakeHandle))
	assert.Same(t, first, c.Put("/f", second).(*fakeHandle))
	assert.True(t, second.closed.Load())
	assert.False(t, first.closed.Load())

	h, ok := c.Get("/f")
	require.True(t, ok)
	assert.Same(t, first, h.(*fakeHandle))
}

func TestHandleCacheReset(t *testing.T) {
	c := NewHandleCache(nil)
	h := &fakeHandle{path: Root}
	c.Put(Root, h)
	c.Put("/x", &fakeHandle{path: "/x"})

	c.Reset()

	assert.Empty(t, c.Paths())
	assert.True(t, h.closed.Load())
}

func TestHandleCacheConcurrentResolve(t *testing.T) {
	ctx := context.Background()
	d := newFakeDeriver("/a", "/a/b")
	c := NewHandleCache(nil)

	var wg sync.WaitGroup
	results := make([]Handle, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Resolve(ctx, d, "/a/b", false)
			assert.NoError(t, err)
			results[i] = h
		}(i)
	}
	wg.Wait()

	// Racing derivations may happen, but only one handle per path survives.
	for _, h := range results {
		assert.Same(t, results[0].(*fakeHandle), h.(*fakeHandle))
	}
}
