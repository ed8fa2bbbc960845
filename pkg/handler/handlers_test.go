package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/choraleia/xide/pkg/db"
	"github.com/choraleia/xide/pkg/event"
	"github.com/choraleia/xide/pkg/models"
	"github.com/choraleia/xide/pkg/service"
	"github.com/choraleia/xide/pkg/vfs"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine  *gin.Engine
	emitter *event.Emitter
	dir     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	reg := service.NewLocalFSRegistry(nil)
	t.Cleanup(reg.Close)
	fsSvc := service.NewFSService(reg)
	emitter := event.NewEmitter()

	gdb, err := db.Open(filepath.Join(t.TempDir(), "xide.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	engine := gin.New()
	engine.Use(RequestID(), CORS())
	api := engine.Group("/api")
	NewFSHandler(fsSvc, emitter).RegisterRoutes(api)
	api.POST("/command/execute", NewCommandHandler(service.NewCommandService(reg, fsSvc, 10*time.Second), emitter, nil).Execute)
	NewRecentHandler(service.NewRecentService(gdb, ""), nil).RegisterRoutes(api)

	return &testServer{engine: engine, emitter: emitter, dir: dir}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func pathQuery(p string) string {
	return "?" + url.Values{"path": {p}}.Encode()
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{vfs.CodeNotFound, http.StatusNotFound},
		{vfs.CodeAlreadyExists, http.StatusConflict},
		{vfs.CodePermissionDenied, http.StatusForbidden},
		{vfs.CodeForbiddenRootWrite, http.StatusForbidden},
		{vfs.CodeInvalidArgument, http.StatusBadRequest},
		{vfs.CodeInternal, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.code), tt.code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/directory/exists"+pathQuery(s.dir), nil)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/directory/exists"+pathQuery(s.dir), nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodOptions, "/api/file/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestDirectoryEndpoints(t *testing.T) {
	s := newTestServer(t)

	exists := decode[models.DirectoryExistsResponse](t, s.do(t, http.MethodGet, "/api/directory/exists"+pathQuery(s.dir), nil))
	assert.True(t, exists.Exists)
	exists = decode[models.DirectoryExistsResponse](t, s.do(t, http.MethodGet, "/api/directory/exists"+pathQuery(filepath.Join(s.dir, "a.txt")), nil))
	assert.False(t, exists.Exists)

	w := s.do(t, http.MethodPost, "/api/directory/read", models.PathRequest{Path: s.dir})
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode[models.DirectoryReadResponse](t, w)
	assert.True(t, listing.Success)
	assert.Len(t, listing.Items, 2)

	w = s.do(t, http.MethodGet, "/api/directory/read"+pathQuery(filepath.Join(s.dir, "nope")), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	st := decode[models.Status](t, w)
	assert.False(t, st.Success)
	assert.Equal(t, vfs.CodeNotFound, st.Code)
	assert.NotEmpty(t, st.Error)
}

func TestFileEndpoints(t *testing.T) {
	s := newTestServer(t)
	a := filepath.Join(s.dir, "a.txt")
	var changed []string
	s.emitter.On(event.FSChanged, func(ev event.Event) {
		changed = append(changed, ev.(event.FSChangedEvent).Paths...)
	})

	read := decode[models.FileReadResponse](t, s.do(t, http.MethodPost, "/api/file/read", models.PathRequest{Path: a}))
	assert.True(t, read.Success)
	assert.Equal(t, "hello", read.Content)

	w := s.do(t, http.MethodPost, "/api/file/write", models.WriteFileRequest{Path: a, Content: "bye"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{a}, changed)
	b, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(b))

	w = s.do(t, http.MethodPost, "/api/file/write", models.WriteFileRequest{Path: filepath.Join(s.dir, "none.txt")})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/file/create", models.WriteFileRequest{Path: filepath.Join(s.dir, "n", "new.txt"), Content: "x"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.FileExists(t, filepath.Join(s.dir, "n", "new.txt"))

	w = s.do(t, http.MethodPost, "/api/file/create", models.WriteFileRequest{Path: a})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, vfs.CodeAlreadyExists, decode[models.Status](t, w).Code)
}

func TestFolderEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/folder/create", models.PathRequest{Path: filepath.Join(s.dir, "x", "y")})
	require.Equal(t, http.StatusOK, w.Code)
	assert.DirExists(t, filepath.Join(s.dir, "x", "y"))

	w = s.do(t, http.MethodPost, "/api/folder/create", models.PathRequest{Path: filepath.Join(s.dir, "sub")})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/folder/create", models.PathRequest{Path: "/xide-handler-test"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, vfs.CodeForbiddenRootWrite, decode[models.Status](t, w).Code)
	assert.NoDirExists(t, "/xide-handler-test")
}

func TestDeleteRenameMoveEndpoints(t *testing.T) {
	s := newTestServer(t)
	a, sub := filepath.Join(s.dir, "a.txt"), filepath.Join(s.dir, "sub")

	w := s.do(t, http.MethodPost, "/api/rename", models.RenameRequest{OldPath: a, NewPath: filepath.Join(s.dir, "b.txt")})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/api/item/move", models.MoveRequest{SourcePath: filepath.Join(s.dir, "b.txt"), TargetPath: sub})
	require.Equal(t, http.StatusOK, w.Code)
	moved := decode[models.MoveResponse](t, w)
	assert.Equal(t, filepath.Join(sub, "b.txt"), moved.DestinationPath)

	ex := decode[models.ExistsResponse](t, s.do(t, http.MethodGet, "/api/item/exists"+pathQuery(moved.DestinationPath), nil))
	assert.True(t, ex.Exists)

	w = s.do(t, http.MethodPost, "/api/delete", models.PathRequest{Path: sub})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NoDirExists(t, sub)

	w = s.do(t, http.MethodPost, "/api/delete", models.PathRequest{Path: sub})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPost, "/api/delete", models.PathRequest{Path: "/"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{"missing query path", http.MethodGet, "/api/item/exists", nil},
		{"empty body path", http.MethodPost, "/api/file/read", models.PathRequest{}},
		{"relative path", http.MethodPost, "/api/directory/read", models.PathRequest{Path: "rel"}},
		{"rename without target", http.MethodPost, "/api/rename", models.RenameRequest{OldPath: "/tmp/x"}},
		{"malformed body", http.MethodPost, "/api/delete", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, vfs.CodeInvalidArgument, decode[models.Status](t, w).Code)
		})
	}
}

func TestCommandEndpoint(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
	s := newTestServer(t)
	var finished []event.CommandFinishedEvent
	s.emitter.On(event.CommandFinished, func(ev event.Event) {
		finished = append(finished, ev.(event.CommandFinishedEvent))
	})

	ok := decode[models.CommandResponse](t, s.do(t, http.MethodPost, "/api/command/execute", models.CommandRequest{Command: "echo hi", Cwd: s.dir}))
	assert.True(t, ok.Success)
	assert.Equal(t, "hi\n", ok.Stdout)
	assert.Equal(t, 0, ok.ExitCode)

	bad := decode[models.CommandResponse](t, s.do(t, http.MethodPost, "/api/command/execute", models.CommandRequest{Command: "echo no >&2; exit 2"}))
	assert.False(t, bad.Success)
	assert.Equal(t, 2, bad.ExitCode)
	assert.Equal(t, "no\n", bad.Stderr)
	assert.NotEmpty(t, bad.Error)
	assert.Len(t, finished, 2)

	w := s.do(t, http.MethodPost, "/api/command/execute", models.CommandRequest{Command: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentEndpoints(t *testing.T) {
	s := newTestServer(t)

	empty := decode[models.RecentResponse](t, s.do(t, http.MethodGet, "/api/recent", nil))
	assert.True(t, empty.Success)
	assert.Empty(t, empty.Files)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/recent/file", models.PathRequest{Path: "/a.txt"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/recent/file", models.PathRequest{Path: "/b.txt"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/recent/folder", models.PathRequest{Path: "project"}).Code)

	got := decode[models.RecentResponse](t, s.do(t, http.MethodGet, "/api/recent", nil))
	assert.Equal(t, []string{"/b.txt", "/a.txt"}, got.Files)
	assert.Equal(t, "project", got.Folder)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/recent/file", models.PathRequest{}).Code)
}
