package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
	"MarketCore/internal/usecase"
	xhttp "MarketCore/pkg/http"
	xlogger "MarketCore/pkg/logger"
	xutil "MarketCore/pkg/util"
)

// AnalysisHandler serves the analysis read model and confluence scoring.
type AnalysisHandler struct {
	logger   *xlogger.Logger
	pipeline *usecase.Pipeline
	bars     *usecase.BarsUseCase
}

// NewAnalysisHandler wires the routes; bars may be nil when no bar store is configured.
func NewAnalysisHandler(logger *xlogger.Logger, pipeline *usecase.Pipeline, bars *usecase.BarsUseCase) *AnalysisHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AnalysisHandler{logger: logger, pipeline: pipeline, bars: bars}
}

func (h *AnalysisHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/symbols", h.Symbols)
	g.GET("/analysis/:symbol", h.Analysis)
	g.GET("/regime/:symbol", h.Regime)
	g.GET("/levels/:symbol", h.Levels)
	g.GET("/zones/:symbol", h.Zones)
	g.GET("/session/:symbol", h.Session)
	g.POST("/confluence/:symbol", h.Confluence)
	if h.bars != nil {
		g.GET("/bars/:symbol", h.Bars)
	}
}

func (h *AnalysisHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":  "ok",
		"symbols": len(h.pipeline.Symbols()),
		"time":    time.Now().UTC(),
	})
}

func (h *AnalysisHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.pipeline.Symbols())
}

func (h *AnalysisHandler) Analysis(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return h.fail(c, "analysis", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, snap)
}

func (h *AnalysisHandler) Regime(c echo.Context) error {
	req := &models.RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	points, err := h.pipeline.Regime(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, "regime", err)
	}
	return xhttp.SuccessResponse(c, points)
}

func (h *AnalysisHandler) Levels(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return h.fail(c, "levels", err)
	}
	return xhttp.SuccessResponse(c, snap.Levels)
}

func (h *AnalysisHandler) Zones(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return h.fail(c, "zones", err)
	}
	return xhttp.SuccessResponse(c, snap.Zones)
}

func (h *AnalysisHandler) Session(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.pipeline.Session(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "session", err)
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *AnalysisHandler) Confluence(c echo.Context) error {
	req := &models.ConfluenceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.pipeline.Evaluate(c.Request().Context(), req.Symbol, req.Candidate(), req.Projection, req.Project)
	if err != nil {
		return h.fail(c, "confluence", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	iv, err := domrepo.ParseInterval(req.Interval)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
	}
	p := usecase.GetBarsParams{Symbol: req.Symbol, Interval: iv, Limit: req.Limit}
	if req.From != "" {
		from, ok := xutil.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from %q", req.From))
		}
		p.From = from.UTC()
		p.To = xutil.ParseTimeDefault(req.To, time.Now()).UTC()
	}
	res, err := h.bars.GetBars(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, "bars", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) snapshot(c echo.Context) (*models.AnalysisSnapshot, error) {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return nil, xhttp.BadRequestErrorf("symbol is required")
	}
	return h.pipeline.Snapshot(c.Request().Context(), req.Symbol)
}

// fail maps domain errors to HTTP statuses.
func (h *AnalysisHandler) fail(c echo.Context, op string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, models.ErrUnknownSymbol):
		appErr = xhttp.NotFoundErrorf("%v", err)
	case errors.Is(err, models.ErrInsufficientHistory):
		appErr = xhttp.ConflictErrorf("%v", err)
	default:
		h.logger.Error("api request failed", xlogger.String("op", op), xlogger.Error(err))
		appErr = xhttp.InternalErrorf("%s failed", op).WithError(err)
	}
	return xhttp.AppErrorResponse(c, appErr)
}
