package api

import (
	"errors"
	"net/http"
	"time"

	models "CandleFlow/internal/domain/models"
	domrepo "CandleFlow/internal/domain/repository"
	"CandleFlow/internal/service/events"
	"CandleFlow/internal/service/ratelimit"
	"CandleFlow/internal/usecase"
	xhttp "CandleFlow/pkg/http"
	xlogger "CandleFlow/pkg/logger"
	"CandleFlow/pkg/util"

	"github.com/labstack/echo/v4"
)

// CandlesEchoHandler exposes tick ingest, candle range queries, and engine
// status over HTTP.
type CandlesEchoHandler struct {
	logger    *xlogger.Logger
	candles   *usecase.CandlesUseCase
	ingest    *usecase.TickProcessor
	collector *usecase.TickCollector
	drops     *events.DropCollector
	rl        *ratelimit.Limiter
}

func NewCandlesEchoHandler(
	logger *xlogger.Logger,
	candles *usecase.CandlesUseCase,
	ingest *usecase.TickProcessor,
	collector *usecase.TickCollector,
	drops *events.DropCollector,
) *CandlesEchoHandler {
	return &CandlesEchoHandler{
		logger:    logger,
		candles:   candles,
		ingest:    ingest,
		collector: collector,
		drops:     drops,
		rl:        ratelimit.New(),
	}
}

func (h *CandlesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/ticks", h.IngestTick)
	g.POST("/ticks/batch", h.IngestBatch)
	g.GET("/candles", h.Candles)
	g.GET("/status", h.Status)
}

func (h *CandlesEchoHandler) IngestTick(c echo.Context) error {
	req := &models.IngestTickRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":ingest", 200, 100) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	tick := &models.RawTick{
		Symbol:    req.Symbol,
		Timestamp: req.Timestamp,
		Price:     req.Price,
		Volume:    req.Volume,
	}
	if err := h.ingest.Process(c.Request().Context(), tick); err != nil {
		return h.ingestError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"accepted": 1})
}

func (h *CandlesEchoHandler) IngestBatch(c echo.Context) error {
	req := &models.IngestBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":ingest_batch", 20, 10) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	ticks := make([]*models.RawTick, len(req.Ticks))
	for i, r := range req.Ticks {
		ticks[i] = &models.RawTick{
			Symbol:    r.Symbol,
			Timestamp: r.Timestamp,
			Price:     r.Price,
			Volume:    r.Volume,
		}
	}
	if err := h.ingest.ProcessBatch(c.Request().Context(), ticks); err != nil {
		return h.ingestError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"accepted": len(ticks)})
}

func (h *CandlesEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now().UTC()
	from := util.ParseTimeDefault(req.From, now.Add(-time.Hour))
	to := util.ParseTimeDefault(req.To, now)

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: domrepo.Timeframe(req.TF),
	})
	if err != nil {
		return h.queryError(c, err)
	}

	items := make([]models.CandleItem, len(res.Candles))
	for i, cd := range res.Candles {
		items[i] = models.NewCandleItem(cd)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol": res.Symbol,
		"tf":     res.Timeframe,
		"from":   res.From.Unix(),
		"to":     res.To.Unix(),
		"count":  res.Count,
		"rows":   items,
	})
}

// statusResponse is the engine health snapshot served by GET /api/status.
type statusResponse struct {
	FeedConnected bool               `json:"feedConnected"`
	OpenBuckets   int                `json:"openBuckets"`
	Watermarks    map[string]int64   `json:"watermarks"`
	DropTotal     int64              `json:"dropTotal"`
	DropCounts    map[string]int64   `json:"dropCounts"`
	RecentDrops   []events.DropEntry `json:"recentDrops"`
}

func (h *CandlesEchoHandler) Status(c echo.Context) error {
	eng := h.ingest.Engine()

	wms := make(map[string]int64)
	for sym := range eng.Watermarks().MaxEventTimes() {
		wms[sym] = eng.Watermarks().WatermarkFor(sym).Unix()
	}

	resp := statusResponse{
		OpenBuckets: eng.OpenBuckets(),
		Watermarks:  wms,
		DropTotal:   h.drops.Total(),
		DropCounts:  h.drops.Counts(),
		RecentDrops: h.drops.Recent(50),
	}
	if h.collector != nil {
		resp.FeedConnected = h.collector.IsConnected()
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *CandlesEchoHandler) ingestError(c echo.Context, err error) error {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_INVALID",
			Field:   verr.Field,
			Message: verr.Message,
		}})
	}
	h.logger.Error("ingest error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("ingest failed").WithError(err))
}

func (h *CandlesEchoHandler) queryError(c echo.Context, err error) error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_INVALID",
			Field:   verr.Field,
			Message: verr.Message,
		}})
	case errors.Is(err, models.ErrInvalidRange):
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_INVALID_RANGE",
			Message: err.Error(),
		}})
	case errors.Is(err, models.ErrStorageUnavailable):
		h.logger.Error("storage unavailable", xlogger.Error(err))
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_STORAGE_UNAVAILABLE", "", "storage unavailable", http.StatusServiceUnavailable).WithError(err))
	default:
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query failed").WithError(err))
	}
}
