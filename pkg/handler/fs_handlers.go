package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/choraleia/xide/pkg/event"
	"github.com/choraleia/xide/pkg/models"
	"github.com/choraleia/xide/pkg/service"
	"github.com/choraleia/xide/pkg/utils"
	"github.com/choraleia/xide/pkg/vfs"
	"github.com/gin-gonic/gin"
)

// FSHandler serves the companion file service protocol. Every response
// carries {success, error?, code?}; code is one of the vfs.Code* values.
type FSHandler struct {
	svc     *service.FSService
	emitter *event.Emitter
	logger  *slog.Logger
}

func NewFSHandler(svc *service.FSService, emitter *event.Emitter) *FSHandler {
	if emitter == nil {
		emitter = event.Global()
	}
	return &FSHandler{svc: svc, emitter: emitter, logger: utils.GetLogger()}
}

// RegisterRoutes mounts the file service endpoints under /api.
func (h *FSHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/directory/exists", h.DirectoryExists)
	api.POST("/directory/read", h.ReadDirectory)
	api.GET("/directory/read", h.ReadDirectory)
	api.POST("/file/read", h.ReadFile)
	api.GET("/file/read", h.ReadFile)
	api.POST("/file/write", h.WriteFile)
	api.POST("/file/create", h.CreateFile)
	api.POST("/folder/create", h.CreateFolder)
	api.POST("/delete", h.Delete)
	api.POST("/rename", h.Rename)
	api.PUT("/item/move", h.Move)
	api.GET("/item/exists", h.Exists)
	api.GET("/watch", h.Watch)
}

func (h *FSHandler) DirectoryExists(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.DirectoryExistsResponse{Exists: h.svc.DirectoryExists(c.Request.Context(), p)})
}

func (h *FSHandler) ReadDirectory(c *gin.Context) {
	p, ok := requestPath(c)
	if !ok {
		return
	}
	items, err := h.svc.ReadDirectory(c.Request.Context(), p)
	if err != nil {
		h.fail(c, "read directory", err)
		return
	}
	c.JSON(http.StatusOK, models.DirectoryReadResponse{Status: models.Status{Success: true}, Items: items})
}

func (h *FSHandler) ReadFile(c *gin.Context) {
	p, ok := requestPath(c)
	if !ok {
		return
	}
	content, err := h.svc.ReadFile(c.Request.Context(), p)
	if err != nil {
		h.fail(c, "read file", err)
		return
	}
	c.JSON(http.StatusOK, models.FileReadResponse{Status: models.Status{Success: true}, Content: content})
}

func (h *FSHandler) WriteFile(c *gin.Context) {
	var req models.WriteFileRequest
	if !bindJSON(c, &req) || !requirePath(c, req.Path) {
		return
	}
	if err := h.svc.WriteFile(c.Request.Context(), req.Path, req.Content); err != nil {
		h.fail(c, "write file", err)
		return
	}
	h.emitter.Emit(event.FSChangedEvent{Paths: []string{req.Path}})
	succeed(c)
}

func (h *FSHandler) CreateFile(c *gin.Context) {
	var req models.WriteFileRequest
	if !bindJSON(c, &req) || !requirePath(c, req.Path) {
		return
	}
	if err := h.svc.CreateFile(c.Request.Context(), req.Path, req.Content); err != nil {
		h.fail(c, "create file", err)
		return
	}
	h.emitter.Emit(event.FSCreatedEvent{Path: req.Path})
	succeed(c)
}

func (h *FSHandler) CreateFolder(c *gin.Context) {
	var req models.PathRequest
	if !bindJSON(c, &req) || !requirePath(c, req.Path) {
		return
	}
	if err := h.svc.CreateFolder(c.Request.Context(), req.Path); err != nil {
		h.fail(c, "create folder", err)
		return
	}
	h.emitter.Emit(event.FSCreatedEvent{Path: req.Path, IsDir: true})
	succeed(c)
}

func (h *FSHandler) Delete(c *gin.Context) {
	var req models.PathRequest
	if !bindJSON(c, &req) || !requirePath(c, req.Path) {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), req.Path); err != nil {
		h.fail(c, "delete", err)
		return
	}
	h.emitter.Emit(event.FSDeletedEvent{Path: req.Path})
	succeed(c)
}

func (h *FSHandler) Rename(c *gin.Context) {
	var req models.RenameRequest
	if !bindJSON(c, &req) || !requirePath(c, req.OldPath) || !requirePath(c, req.NewPath) {
		return
	}
	if err := h.svc.Rename(c.Request.Context(), req.OldPath, req.NewPath); err != nil {
		h.fail(c, "rename", err)
		return
	}
	h.emitter.Emit(event.FSRenamedEvent{OldPath: req.OldPath, NewPath: req.NewPath})
	succeed(c)
}

func (h *FSHandler) Move(c *gin.Context) {
	var req models.MoveRequest
	if !bindJSON(c, &req) || !requirePath(c, req.SourcePath) || !requirePath(c, req.TargetPath) {
		return
	}
	dest, err := h.svc.Move(c.Request.Context(), req.SourcePath, req.TargetPath)
	if err != nil {
		h.fail(c, "move", err)
		return
	}
	h.emitter.Emit(event.FSRenamedEvent{OldPath: req.SourcePath, NewPath: dest})
	c.JSON(http.StatusOK, models.MoveResponse{Status: models.Status{Success: true}, DestinationPath: dest})
}

func (h *FSHandler) Exists(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	exists, err := h.svc.Exists(c.Request.Context(), p)
	if err != nil {
		h.fail(c, "exists", err)
		return
	}
	c.JSON(http.StatusOK, models.ExistsResponse{Status: models.Status{Success: true}, Exists: exists})
}

// Watch streams change events below ?path= as server-sent events until the
// client disconnects.
func (h *FSHandler) Watch(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	events, err := h.svc.Watch(c.Request.Context(), p)
	if err != nil {
		h.fail(c, "watch", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		ev, open := <-events
		if !open {
			return false
		}
		c.SSEvent("message", models.WatchEvent{Event: ev.Event, Path: ev.Path})
		return true
	})
}

func (h *FSHandler) fail(c *gin.Context, op string, err error) {
	code := service.ErrorCode(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("File operation failed", "op", op, "error", err, "request_id", c.GetString(requestIDKey))
	} else {
		h.logger.Debug("File operation rejected", "op", op, "code", code, "error", err, "request_id", c.GetString(requestIDKey))
	}
	fail(c, status, code, err.Error())
}

func httpStatus(code string) int {
	switch code {
	case vfs.CodeNotFound:
		return http.StatusNotFound
	case vfs.CodeAlreadyExists:
		return http.StatusConflict
	case vfs.CodePermissionDenied, vfs.CodeForbiddenRootWrite:
		return http.StatusForbidden
	case vfs.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func succeed(c *gin.Context) {
	c.JSON(http.StatusOK, models.Status{Success: true})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, models.Status{Success: false, Error: msg, Code: code})
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, vfs.CodeInvalidArgument, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func requirePath(c *gin.Context, p string) bool {
	if strings.TrimSpace(p) == "" {
		fail(c, http.StatusBadRequest, vfs.CodeInvalidArgument, "path is required")
		return false
	}
	return true
}

func queryPath(c *gin.Context) (string, bool) {
	p := c.Query("path")
	return p, requirePath(c, p)
}

// requestPath reads the path from the query for GET and from the JSON body
// otherwise.
func requestPath(c *gin.Context) (string, bool) {
	if c.Request.Method == http.MethodGet {
		return queryPath(c)
	}
	var req models.PathRequest
	if !bindJSON(c, &req) {
		return "", false
	}
	return req.Path, requirePath(c, req.Path)
}
