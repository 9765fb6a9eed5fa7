package api

import (
	"errors"

	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
	"SignalGuard/internal/integrity"
	"SignalGuard/internal/risk"
	"SignalGuard/internal/usecase"
	xhttp "SignalGuard/pkg/http"
	xlogger "SignalGuard/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalsHandler seals, emits and verifies signals.
type SignalsHandler struct {
	logger   *xlogger.Logger
	verifier *integrity.Verifier
	emitter  *usecase.SignalEmitter
}

func NewSignalsHandler(logger *xlogger.Logger, verifier *integrity.Verifier, emitter *usecase.SignalEmitter) *SignalsHandler {
	return &SignalsHandler{logger: logger, verifier: verifier, emitter: emitter}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/signals")
	g.GET("", h.Recent)
	g.POST("", h.Emit)
	g.POST("/hash", h.Hash)
	g.POST("/verify", h.Verify)
	g.POST("/verify-batch", h.VerifyBatch)
	g.GET("/:id/verify", h.VerifyStored)
}

func (h *SignalsHandler) bindSignal(c echo.Context) (models.Signal, error) {
	var s models.Signal
	if err := c.Bind(&s); err != nil {
		return s, xhttp.BadRequestErrorf("invalid signal payload").WithError(err)
	}
	return s, nil
}

func (h *SignalsHandler) Hash(c echo.Context) error {
	s, err := h.bindSignal(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	hash, err := h.verifier.GenerateHash(s)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err).WithError(err))
	}
	return xhttp.SuccessResponse(c, models.HashResponse{Hash: hash, HashVersion: h.verifier.VersionOf(s)})
}

// Verify always answers 200; an invalid signal is a result, not a request error.
func (h *SignalsHandler) Verify(c echo.Context) error {
	s, err := h.bindSignal(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, h.verifier.Verify(s))
}

func (h *SignalsHandler) VerifyBatch(c echo.Context) error {
	req := &models.VerifyBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := models.VerifyBatchResponse{Results: h.verifier.VerifyMany(req.Signals)}
	for _, r := range res.Results {
		if r.IsValid {
			res.Valid++
		} else {
			res.Invalid++
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsHandler) Emit(c echo.Context) error {
	req := &models.EmitSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.emitter.Emit(c.Request().Context(), req.Signal())
	switch {
	case err == nil:
		return xhttp.CreatedResponse(c, s)
	case errors.Is(err, risk.ErrTradingHalted):
		return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("trading halted").WithError(err))
	case errors.Is(err, usecase.ErrInvalidSignal):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
	default:
		h.logger.Error("emit signal failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}

func (h *SignalsHandler) Recent(c echo.Context) error {
	limit := xhttp.QueryInt(c, "limit", 50, 1, 1000)
	rows, err := h.emitter.Recent(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("recent signals failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) VerifyStored(c echo.Context) error {
	id := c.Param("id")
	res, err := h.emitter.VerifyStored(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("signal %s not found", id))
		}
		h.logger.Error("verify stored signal failed", xlogger.String("id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
