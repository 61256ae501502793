package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nixmate/internal/history"
	"nixmate/internal/operation"
	"nixmate/internal/progress"
	"nixmate/pkg/logging"
)

type handlers struct {
	cfg Config
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) executeOperation(c *gin.Context) {
	var op operation.Operation
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res := h.cfg.Runner.Execute(c.Request.Context(), op, func(ev progress.Event) {
		logging.Info("Server", "%s %s: %3.0f%% %s", ev.OperationID, op.Kind(), ev.Fraction*100, ev.Message)
	})

	code := http.StatusOK
	switch res.FailureCategory {
	case operation.CategoryValidation:
		code = http.StatusUnprocessableEntity
	case operation.CategoryPermission:
		code = http.StatusForbidden
	}
	c.JSON(code, res)
}

func (h *handlers) metricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Metrics.Snapshot())
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Status())
}

func (h *handlers) history(c *gin.Context) {
	if h.cfg.History == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "history is disabled"})
		return
	}
	limit := history.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records, err := h.cfg.History.Recent(c.Request.Context(), limit)
	if err != nil {
		logging.Error("Server", err, "Failed to read history")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to read history"})
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
