package api

import (
	"errors"
	"time"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/risk"
	xhttp "SignalGuard/pkg/http"
	xlogger "SignalGuard/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RiskHandler exposes the circuit breaker state and its manual controls.
type RiskHandler struct {
	logger  *xlogger.Logger
	monitor *risk.Monitor
}

func NewRiskHandler(logger *xlogger.Logger, monitor *risk.Monitor) *RiskHandler {
	return &RiskHandler{logger: logger, monitor: monitor}
}

func (h *RiskHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/risk")
	g.GET("/status", h.Status)
	g.GET("/samples", h.Samples)
	g.POST("/equity", h.UpdateEquity)
	g.POST("/reset-halt", h.ResetHalt)
	g.POST("/reset-daily", h.ResetDaily)
}

func (h *RiskHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.monitor.Status())
}

func (h *RiskHandler) Samples(c echo.Context) error {
	req := &models.SamplesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	samples := h.monitor.Samples(0)
	if req.Since != "" {
		since := xhttp.QueryTime(c, "since", time.Time{})
		i := 0
		for i < len(samples) && samples[i].Timestamp.Before(since) {
			i++
		}
		samples = samples[i:]
	}
	if len(samples) > req.Limit {
		samples = samples[len(samples)-req.Limit:]
	}
	return xhttp.ListResponse(c, samples, int64(len(samples)))
}

func (h *RiskHandler) UpdateEquity(c echo.Context) error {
	req := &models.EquityUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, err := h.monitor.UpdateEquity(*req.Equity); err != nil {
		if errors.Is(err, risk.ErrInvalidEquity) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err).WithError(err))
		}
		h.logger.Error("equity update failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, h.monitor.Status())
}

func (h *RiskHandler) ResetHalt(c echo.Context) error {
	if err := h.monitor.ResetHalt(); err != nil {
		if errors.Is(err, risk.ErrStillBreached) {
			return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("limits are still breached; halt stays latched"))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Warn("risk halt reset via api", xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, h.monitor.Status())
}

func (h *RiskHandler) ResetDaily(c echo.Context) error {
	h.monitor.ResetDaily()
	return xhttp.SuccessResponse(c, h.monitor.Status())
}
