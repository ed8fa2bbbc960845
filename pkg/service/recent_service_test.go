package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/choraleia/xide/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecentService(t *testing.T, backend string) *RecentService {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "xide.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRecentService(gdb, backend)
}

func TestRecentFilesOrderAndDedupe(t *testing.T) {
	ctx := context.Background()
	svc := newTestRecentService(t, "local")

	for _, p := range []string{"/a", "/b", "/c", "/a"} {
		require.NoError(t, svc.RecordFile(ctx, p))
	}
	files, err := svc.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/c", "/b"}, files)

	assert.ErrorIs(t, svc.RecordFile(ctx, "  "), ErrInvalidArgument)
}

func TestRecentFilesAreBounded(t *testing.T) {
	ctx := context.Background()
	svc := newTestRecentService(t, "remote")

	for i := 0; i < MaxRecentFiles+5; i++ {
		require.NoError(t, svc.RecordFile(ctx, fmt.Sprintf("/f%02d", i)))
	}
	files, err := svc.Files(ctx)
	require.NoError(t, err)
	require.Len(t, files, MaxRecentFiles)
	assert.Equal(t, fmt.Sprintf("/f%02d", MaxRecentFiles+4), files[0])
	assert.Equal(t, "/f05", files[MaxRecentFiles-1])

	var rows int64
	require.NoError(t, svc.db.Model(&db.RecentFile{}).Count(&rows).Error)
	assert.Equal(t, int64(MaxRecentFiles), rows)
}

func TestRecentFolder(t *testing.T) {
	ctx := context.Background()
	svc := newTestRecentService(t, "")

	folder, err := svc.Folder(ctx)
	require.NoError(t, err)
	assert.Empty(t, folder)

	require.NoError(t, svc.RecordFolder(ctx, "project"))
	require.NoError(t, svc.RecordFolder(ctx, "other"))
	folder, err = svc.Folder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other", folder)

	assert.ErrorIs(t, svc.RecordFolder(ctx, ""), ErrInvalidArgument)
}
