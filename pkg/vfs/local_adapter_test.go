package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPicker(dir string) DirectoryPicker {
	return PickerFunc(func(context.Context) (string, error) { return dir, nil })
}

// newLocalSession returns an adapter bound to a fresh temp dir holding a.txt
// ("hello") and sub/b.txt ("world").
func newLocalSession(t *testing.T) (*LocalAdapter, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0o644))

	l := NewLocalAdapter(fixedPicker(dir), nil, nil)
	res := l.SelectRoot(context.Background())
	require.True(t, res.Success, res.Message)
	return l, dir
}

func TestLocalSelectRoot(t *testing.T) {
	l, dir := newLocalSession(t)
	sess := l.Session()
	require.NotNil(t, sess)
	assert.Equal(t, filepath.Base(dir), sess.Label)
	assert.Equal(t, BackendLocal, sess.Backend)
	assert.Equal(t, dir, l.HostDir())

	l.EndSession()
	assert.Nil(t, l.Session())
	assert.Equal(t, KindNoActiveSession, l.List(context.Background(), Root).Kind)
}

func TestLocalSelectRootRestrictions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tests := []struct {
		name string
		env  Environment
	}{
		{"insecure", StaticEnvironment{Picker: true, Activation: true}},
		{"no picker", StaticEnvironment{Secure: true, Activation: true}},
		{"no user activation", StaticEnvironment{Secure: true, Picker: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLocalAdapter(fixedPicker(dir), tt.env, nil)
			res := l.SelectRoot(ctx)
			assert.Equal(t, KindSecurityRestriction, res.Kind)
			assert.NotEmpty(t, res.Solutions)
			assert.Nil(t, l.Session())
		})
	}
}

func TestLocalSelectRootCancelled(t *testing.T) {
	l := NewLocalAdapter(PickerFunc(func(context.Context) (string, error) {
		return "", ErrPickerCancelled
	}), nil, nil)
	assert.Equal(t, KindUserCancelled, l.SelectRoot(context.Background()).Kind)

	l = NewLocalAdapter(PickerFunc(func(context.Context) (string, error) { return "  ", nil }), nil, nil)
	assert.Equal(t, KindUserCancelled, l.SelectRoot(context.Background()).Kind)
}

func TestLocalSelectRootMissingDirectory(t *testing.T) {
	l := NewLocalAdapter(fixedPicker(filepath.Join(t.TempDir(), "nope")), nil, nil)
	assert.Equal(t, KindNotFound, l.SelectRoot(context.Background()).Kind)
}

func TestLocalListAndRead(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocalSession(t)

	list := l.List(ctx, Root)
	require.True(t, list.Success, list.Message)
	byName := map[string]Entry{}
	for _, e := range list.Payload {
		byName[e.Name] = e
	}
	require.Len(t, byName, 2)
	assert.Equal(t, KindDirectory, byName["sub"].Kind)
	assert.Equal(t, "/sub", byName["sub"].Path)
	assert.Equal(t, KindFile, byName["a.txt"].Kind)
	assert.Equal(t, int64(5), byName["a.txt"].Size)

	read := l.ReadFile(ctx, "/sub/b.txt")
	require.True(t, read.Success, read.Message)
	assert.Equal(t, "world", read.Payload)

	assert.Equal(t, KindNotFound, l.ReadFile(ctx, "/nope.txt").Kind)
	assert.Equal(t, KindPathNotFound, l.ReadFile(ctx, "/nope/b.txt").Kind)
	assert.Equal(t, KindInvalidArgument, l.ReadFile(ctx, "/sub").Kind)
	assert.Equal(t, KindInvalidArgument, l.List(ctx, "/a.txt").Kind)
}

func TestLocalWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)

	w := l.WriteFile(ctx, "/a.txt", "changed content")
	require.True(t, w.Success, w.Message)
	r := l.ReadFile(ctx, "/a.txt")
	require.True(t, r.Success)
	assert.Equal(t, "changed content", r.Payload)

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "changed content", string(b))
}

func TestLocalWriteNeverCreates(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)

	res := l.WriteFile(ctx, "/new.txt", "x")
	assert.Equal(t, KindNotFound, res.Kind)
	_, err := os.Stat(filepath.Join(dir, "new.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalCreate(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)

	f := l.CreateFile(ctx, "/sub", "c.txt")
	require.True(t, f.Success, f.Message)
	assert.Equal(t, "/sub/c.txt", f.Payload.Path)
	assert.Equal(t, KindFile, f.Payload.Kind)
	assert.FileExists(t, filepath.Join(dir, "sub", "c.txt"))

	d := l.CreateDirectory(ctx, "/", "docs")
	require.True(t, d.Success, d.Message)
	assert.DirExists(t, filepath.Join(dir, "docs"))

	// Missing parents are created for writes.
	deep := l.CreateFile(ctx, "/x/y", "z.txt")
	require.True(t, deep.Success, deep.Message)
	assert.FileExists(t, filepath.Join(dir, "x", "y", "z.txt"))

	assert.Equal(t, KindInvalidArgument, l.CreateFile(ctx, "/", "a/b").Kind)
	assert.Equal(t, KindInvalidArgument, l.CreateDirectory(ctx, "/", "..").Kind)
}

func TestLocalDuplicateCreateIsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)

	res := l.CreateFile(ctx, "/", "a.txt")
	assert.Equal(t, KindAlreadyExists, res.Kind)
	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	assert.Equal(t, KindAlreadyExists, l.CreateDirectory(ctx, "/", "sub").Kind)
}

func TestLocalDeleteIsRecursive(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "deep", "er"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "deep", "er", "f"), nil, 0o644))

	// Warm the cache below the tree that goes away.
	require.True(t, l.List(ctx, "/sub/deep/er").Success)

	res := l.Delete(ctx, "/sub")
	require.True(t, res.Success, res.Message)
	assert.NoDirExists(t, filepath.Join(dir, "sub"))
	for _, p := range l.handles().Paths() {
		assert.False(t, IsWithin("/sub", p), "stale handle %s", p)
	}

	assert.Equal(t, KindNotFound, l.Delete(ctx, "/sub").Kind)
	assert.Equal(t, KindInvalidArgument, l.Delete(ctx, Root).Kind)
}

func TestLocalRename(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)

	res := l.Rename(ctx, "/a.txt", "c.txt")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "/c.txt", res.Payload.Path)
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))

	b, err := os.ReadFile(filepath.Join(dir, "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	assert.Equal(t, KindAlreadyExists, l.Rename(ctx, "/c.txt", "sub").Kind)
}

func TestLocalMoveDirectory(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)
	require.True(t, l.CreateDirectory(ctx, "/", "dest").Success)

	res := l.Move(ctx, "/sub", "/dest")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "/dest/sub", res.Payload.Path)
	assert.Equal(t, KindDirectory, res.Payload.Kind)

	assert.NoDirExists(t, filepath.Join(dir, "sub"))
	b, err := os.ReadFile(filepath.Join(dir, "dest", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))

	assert.Equal(t, KindInvalidArgument, l.Move(ctx, "/dest", "/dest/sub").Kind)
}

func TestLocalCopyIsIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocalSession(t)

	res := l.Copy(ctx, "/a.txt", "/sub/a-copy.txt")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, int64(5), res.Payload.Size)

	require.True(t, l.WriteFile(ctx, "/sub/a-copy.txt", "diverged").Success)
	orig := l.ReadFile(ctx, "/a.txt")
	require.True(t, orig.Success)
	assert.Equal(t, "hello", orig.Payload)

	assert.Equal(t, KindAlreadyExists, l.Copy(ctx, "/a.txt", "/sub/a-copy.txt").Kind)
}

func TestLocalRefusesEscapes(t *testing.T) {
	ctx := context.Background()
	l, dir := newLocalSession(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644))
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	res := l.ReadFile(ctx, "/link/secret")
	assert.Equal(t, KindSecurityRestriction, res.Kind, res.Message)
}

func TestLocalClosedRootIsInvalidHandle(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocalSession(t)

	h, ok := l.handles().Get(Root)
	require.True(t, ok)
	require.NoError(t, h.(*os.Root).Close())

	assert.Equal(t, KindInvalidHandle, l.List(ctx, Root).Kind)

	l.handles().Invalidate(Root)
	assert.True(t, l.List(ctx, Root).Success)
}

func TestLocalWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, dir := newLocalSession(t)

	changes, err := l.Watch(ctx, "/sub")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "new.txt"), []byte("x"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ch, ok := <-changes:
			require.True(t, ok, "watch closed early")
			if ch.Event == ChangeAdd && ch.Path == "/sub/new.txt" {
				cancel()
				return
			}
		case <-deadline:
			t.Fatal("no add event for /sub/new.txt")
		}
	}
}
