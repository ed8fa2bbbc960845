package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalFacade opens a facade over a real local session rooted at a temp
// dir holding a.txt and sub/b.txt.
func newLocalFacade(t *testing.T) (*Facade, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0o644))

	f := NewFacade(Options{
		Local:       NewLocalAdapter(fixedPicker(dir), nil, nil),
		Environment: capable,
	})
	res := f.SelectRoot(context.Background())
	require.True(t, res.Success, res.Message)
	return f, dir
}

func TestFacadeListOrdersDirectoriesFirst(t *testing.T) {
	f, _ := newLocalFacade(t)

	res := f.List(context.Background(), "/")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"sub", "a.txt"}, names(res.Payload))
	assert.Equal(t, KindDirectory, res.Payload[0].Kind)
	assert.Equal(t, BackendLocal, res.Backend)
}

func TestFacadeListPresentationOrder(t *testing.T) {
	f, dir := newLocalFacade(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "sub")))
	for _, name := range []string{"b.txt", "A.txt", ".env", "zeta", "c.md", "y.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	for _, name := range []string{"zdir", "adir", ".git"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}

	res := f.List(context.Background(), "/")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{".git", "adir", "zdir", ".env", "A.txt", "b.txt", "c.md", "y.go", "zeta"}, names(res.Payload))
}

func TestFacadeListSortsAdapterOrder(t *testing.T) {
	ctx := context.Background()
	fx := newFacadeFixture("")
	require.True(t, fx.facade.SelectRoot(ctx).Success)
	fx.local.listFn = func(_ int, dir string) Result[[]Entry] {
		return OK([]Entry{
			fileEntry(dir, "b.txt"),
			dirEntry(dir, "src"),
			fileEntry(dir, "a.txt"),
			dirEntry(dir, ".cache"),
		})
	}

	res := fx.facade.List(ctx, "/")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{".cache", "src", "a.txt", "b.txt"}, names(res.Payload))
}

func TestFacadeRecreatedDirectoryAfterExternalDelete(t *testing.T) {
	ctx := context.Background()
	f, dir := newLocalFacade(t)
	require.True(t, f.List(ctx, "/sub").Success)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "sub")))

	created := f.CreateDirectory(ctx, "/", "sub")
	require.True(t, created.Success, created.Message)
	file := f.CreateFile(ctx, "/sub", "y.txt")
	require.True(t, file.Success, file.Message)
	assert.FileExists(t, filepath.Join(dir, "sub", "y.txt"))

	res := f.List(ctx, "/sub")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"y.txt"}, names(res.Payload))
}

func TestFacadeListAfterExternalReplace(t *testing.T) {
	ctx := context.Background()
	f, dir := newLocalFacade(t)
	require.True(t, f.List(ctx, "/sub").Success)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.RemoveAll(sub))
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.txt"), []byte("fresh"), 0o644))

	res := f.List(ctx, "/sub")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"new.txt"}, names(res.Payload))

	read := f.ReadFile(ctx, "/sub/new.txt")
	require.True(t, read.Success, read.Message)
	assert.Equal(t, "fresh", read.Payload)
}

func TestFacadeReadAfterExternalDeleteIsMissing(t *testing.T) {
	ctx := context.Background()
	f, dir := newLocalFacade(t)
	require.True(t, f.List(ctx, "/sub").Success)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "sub")))

	res := f.ReadFile(ctx, "/sub/b.txt")
	assert.False(t, res.Success)
	assert.True(t, res.Kind.Missing(), "got %s", res.Kind)

	res2 := f.List(ctx, "/sub")
	assert.True(t, res2.Kind.Missing(), "got %s", res2.Kind)
}

func TestFacadeStaleHandleThenRestrictionDoesNotFallBack(t *testing.T) {
	ctx := context.Background()
	fx := newFacadeFixture("")
	require.True(t, fx.facade.SelectRoot(ctx).Success)
	fx.remote.open()
	fx.local.listFn = func(n int, _ string) Result[[]Entry] {
		if n == 1 {
			return failing[[]Entry](KindInvalidHandle)
		}
		return failing[[]Entry](KindSecurityRestriction)
	}

	res := fx.facade.List(ctx, "/")
	assert.Equal(t, KindSecurityRestriction, res.Kind)
	assert.Equal(t, BackendLocal, res.Backend)
	assert.Equal(t, BackendLocal, fx.facade.Active())
	assert.Equal(t, 2, fx.local.count("list"))
	assert.Zero(t, fx.remote.count("list"))
}

func TestFacadeFallbackHintReachesErr(t *testing.T) {
	ctx := context.Background()
	fx := newFacadeFixture(BackendRemote)
	require.True(t, fx.facade.SelectRoot(ctx).Success)
	fx.remote.listFn = func(int, string) Result[[]Entry] {
		return failing[[]Entry](KindBackendUnreachable)
	}

	res := fx.facade.List(ctx, "/")
	err := res.Err()
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindBackendUnreachable, e.Kind)
	assert.Equal(t, res.Solutions, e.Solutions)
	assert.Contains(t, e.Solutions, "Open a folder on the local backend to continue there")
}
