package api

import (
	"errors"
	"time"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/weights"
	xhttp "SignalGuard/pkg/http"
	xlogger "SignalGuard/pkg/logger"

	"github.com/labstack/echo/v4"
)

type WeightsHandler struct {
	logger  *xlogger.Logger
	manager *weights.Manager
}

func NewWeightsHandler(logger *xlogger.Logger, manager *weights.Manager) *WeightsHandler {
	return &WeightsHandler{logger: logger, manager: manager}
}

func (h *WeightsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/weights")
	g.GET("", h.Weights)
	g.GET("/report", h.Report)
	g.POST("/outcomes", h.RecordOutcome)
	g.POST("/adjust", h.Adjust)
}

type weightsView struct {
	Weights      map[string]float64 `json:"weights"`
	LastAdjusted *time.Time         `json:"last_adjusted,omitempty"`
}

func (h *WeightsHandler) view(w map[string]float64) weightsView {
	v := weightsView{Weights: w}
	if t := h.manager.LastAdjusted(); !t.IsZero() {
		v.LastAdjusted = &t
	}
	return v
}

func (h *WeightsHandler) Weights(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.view(h.manager.Weights()))
}

func (h *WeightsHandler) Report(c echo.Context) error {
	rows, err := h.manager.PerformanceReport(c.Request().Context())
	if err != nil {
		h.logger.Error("performance report failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *WeightsHandler) RecordOutcome(c echo.Context) error {
	req := &models.OutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.manager.UpdatePerformance(c.Request().Context(), req.SourceID, *req.Correct, *req.Confidence)
	switch {
	case err == nil:
		return xhttp.CreatedResponse(c, nil)
	case errors.Is(err, weights.ErrUnknownSource):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown source %q", req.SourceID))
	case errors.Is(err, weights.ErrInvalidConfidence):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
	default:
		h.logger.Error("record outcome failed", xlogger.String("source", req.SourceID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}

func (h *WeightsHandler) Adjust(c echo.Context) error {
	w, err := h.manager.AdjustWeights(c.Request().Context())
	if err != nil {
		h.logger.Error("weight adjustment failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, h.view(w))
}
