package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/choraleia/xide/pkg/event"
	"github.com/choraleia/xide/pkg/models"
	"github.com/choraleia/xide/pkg/service"
	"github.com/choraleia/xide/pkg/utils"
	"github.com/gin-gonic/gin"
)

type CommandHandler struct {
	svc     *service.CommandService
	emitter *event.Emitter
	logger  *slog.Logger
}

func NewCommandHandler(svc *service.CommandService, emitter *event.Emitter, logger *slog.Logger) *CommandHandler {
	if emitter == nil {
		emitter = event.Global()
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &CommandHandler{svc: svc, emitter: emitter, logger: logger}
}

// Execute runs {command, cwd}. A command that exits non-zero is reported as
// success=false together with its output.
func (h *CommandHandler) Execute(c *gin.Context) {
	var req models.CommandRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Execute(c.Request.Context(), req.Command, req.Cwd)
	if err != nil {
		code := service.ErrorCode(err)
		if errors.Is(err, service.ErrInvalidArgument) {
			fail(c, http.StatusBadRequest, code, err.Error())
			return
		}
		h.logger.Warn("Command failed", "command", req.Command, "error", err, "request_id", c.GetString(requestIDKey))
		c.JSON(http.StatusOK, models.CommandResponse{
			Status:   models.Status{Success: false, Error: err.Error(), Code: code},
			ExitCode: -1,
		})
		return
	}

	h.emitter.Emit(event.CommandFinishedEvent{Command: req.Command, Cwd: req.Cwd, ExitCode: res.ExitCode})
	resp := models.CommandResponse{
		Status:   models.Status{Success: res.ExitCode == 0},
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}
	if res.ExitCode != 0 {
		resp.Error = "command exited with a non-zero status"
	}
	c.JSON(http.StatusOK, resp)
}
