package handler

import (
	"log/slog"
	"net/http"

	"github.com/choraleia/xide/pkg/models"
	"github.com/choraleia/xide/pkg/service"
	"github.com/choraleia/xide/pkg/utils"
	"github.com/gin-gonic/gin"
)

type RecentHandler struct {
	svc    *service.RecentService
	logger *slog.Logger
}

func NewRecentHandler(svc *service.RecentService, logger *slog.Logger) *RecentHandler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &RecentHandler{svc: svc, logger: logger}
}

func (h *RecentHandler) RegisterRoutes(api *gin.RouterGroup) {
	group := api.Group("/recent")
	group.GET("", h.List)
	group.POST("/file", h.RecordFile)
	group.PUT("/folder", h.RecordFolder)
}

func (h *RecentHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	files, err := h.svc.Files(ctx)
	if err != nil {
		h.internal(c, "list recent files", err)
		return
	}
	folder, err := h.svc.Folder(ctx)
	if err != nil {
		h.internal(c, "get recent folder", err)
		return
	}
	c.JSON(http.StatusOK, models.RecentResponse{Status: models.Status{Success: true}, Files: files, Folder: folder})
}

func (h *RecentHandler) RecordFile(c *gin.Context) {
	var req models.PathRequest
	if !bindJSON(c, &req) || !requirePath(c, req.Path) {
		return
	}
	if err := h.svc.RecordFile(c.Request.Context(), req.Path); err != nil {
		h.internal(c, "record recent file", err)
		return
	}
	succeed(c)
}

func (h *RecentHandler) RecordFolder(c *gin.Context) {
	var req models.PathRequest
	if !bindJSON(c, &req) || !requirePath(c, req.Path) {
		return
	}
	if err := h.svc.RecordFolder(c.Request.Context(), req.Path); err != nil {
		h.internal(c, "record recent folder", err)
		return
	}
	succeed(c)
}

func (h *RecentHandler) internal(c *gin.Context, op string, err error) {
	h.logger.Error("Recent store failed", "op", op, "error", err)
	fail(c, http.StatusInternalServerError, service.ErrorCode(err), err.Error())
}
