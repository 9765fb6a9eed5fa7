package api

import (
	"errors"
	"strings"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/service/datasource"
	"SignalGuard/internal/usecase"
	xhttp "SignalGuard/pkg/http"
	xlogger "SignalGuard/pkg/logger"

	"github.com/labstack/echo/v4"
)

type SourcesHandler struct {
	logger  *xlogger.Logger
	gateway *usecase.SourceGateway
	sources usecase.SourceLookup
}

func NewSourcesHandler(logger *xlogger.Logger, gateway *usecase.SourceGateway, sources usecase.SourceLookup) *SourcesHandler {
	return &SourcesHandler{logger: logger, gateway: gateway, sources: sources}
}

func (h *SourcesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/sources")
	g.GET("", h.List)
	g.GET("/quotes", h.QuoteAll)
	g.GET("/:name/quote", h.Quote)
	g.DELETE("/:name/quote", h.Refresh)
}

func (h *SourcesHandler) List(c echo.Context) error {
	names := h.sources.Names()
	return xhttp.ListResponse(c, names, int64(len(names)))
}

func (h *SourcesHandler) Quote(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	name := c.Param("name")
	q, err := h.gateway.Quote(c.Request().Context(), name, req.Symbol)
	switch {
	case err == nil:
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=1")
		return xhttp.SuccessResponse(c, q)
	case errors.Is(err, datasource.ErrUnknownSource):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown source %q", name))
	case errors.Is(err, datasource.ErrNoQuote):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no quote for %s from %s", req.Symbol, name))
	default:
		h.logger.Warn("quote fetch failed", xlogger.String("source", name), xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UpstreamErrorf("source %s unavailable", name).WithError(err))
	}
}

// Refresh drops the cached quote for one source and symbol.
func (h *SourcesHandler) Refresh(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	name := c.Param("name")
	err := h.gateway.Refresh(c.Request().Context(), name, req.Symbol)
	switch {
	case err == nil:
		return xhttp.SuccessResponse(c, map[string]string{"source": name, "symbol": strings.ToUpper(req.Symbol)})
	case errors.Is(err, datasource.ErrUnknownSource):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown source %q", name))
	default:
		h.logger.Warn("quote refresh failed", xlogger.String("source", name), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("quote refresh failed").WithError(err))
	}
}

type quoteAllView struct {
	Quotes map[string]models.Quote `json:"quotes"`
	Errors map[string]string       `json:"errors,omitempty"`
}

func (h *SourcesHandler) QuoteAll(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	quotes, errs := h.gateway.QuoteAll(c.Request().Context(), req.Symbol)
	view := quoteAllView{Quotes: quotes}
	if len(errs) > 0 {
		view.Errors = make(map[string]string, len(errs))
		for name, err := range errs {
			view.Errors[name] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, view)
}
