package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tradepulse/internal/event"
	"tradepulse/internal/logger"
	"tradepulse/internal/projector"
	"tradepulse/internal/query"
	"tradepulse/internal/store"
)

// maxWebhookBody caps one inbound event document.
const maxWebhookBody = 1 << 20

// IngestHandler is the webhook write path.
type IngestHandler interface {
	Ingest(ctx context.Context, body []byte) (event.Event, bool, error)
}

// QueryHandler is the read-only projection surface.
type QueryHandler interface {
	ActiveTrades(ctx context.Context) ([]*projector.TradeState, error)
	CompletedTrades(ctx context.Context) ([]*projector.TradeState, error)
	Trade(ctx context.Context, tradeID string) (*projector.TradeState, error)
	TradeEvents(ctx context.Context, tradeID string) ([]event.Event, error)
	Audits(ctx context.Context, limit int) ([]store.AuditRecord, error)
}

// Router mounts the webhook and query endpoints.
type Router struct {
	ingest  IngestHandler
	queries QueryHandler
	limiter *rate.Limiter
}

// NewRouter builds the /api router. The limiter only guards the webhook;
// reads are cheap and uncapped.
func NewRouter(ingest IngestHandler, queries QueryHandler, perSecond float64, burst int) *Router {
	if perSecond <= 0 {
		perSecond = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &Router{
		ingest:  ingest,
		queries: queries,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Register mounts the routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	if r.ingest != nil {
		group.POST("/events/webhook", r.handleWebhook)
	}
	if r.queries != nil {
		group.GET("/trades/active", r.handleActiveTrades)
		group.GET("/trades/completed", r.handleCompletedTrades)
		group.GET("/trades/:id", r.handleTradeDetail)
		group.GET("/trades/:id/events", r.handleTradeEvents)
		group.GET("/audit", r.handleAudit)
	}
}

func (r *Router) handleWebhook(c *gin.Context) {
	if !r.limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	ev, inserted, err := r.ingest.Ingest(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, event.ErrInvalid) {
			logger.Warnf("[api] webhook rejected ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] webhook append failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] webhook ip=%s trade=%s type=%s duplicate=%v", c.ClientIP(), ev.TradeID, ev.Type, !inserted)
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"trade_id":  ev.TradeID,
		"duplicate": !inserted,
	})
}

func (r *Router) handleActiveTrades(c *gin.Context) {
	trades, err := r.queries.ActiveTrades(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] active trades failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (r *Router) handleCompletedTrades(c *gin.Context) {
	trades, err := r.queries.CompletedTrades(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] completed trades failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (r *Router) handleTradeDetail(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	state, err := r.queries.Trade(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, query.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			logger.Errorf("[api] trade detail failed ip=%s trade=%s err=%v", c.ClientIP(), id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": state})
}

func (r *Router) handleTradeEvents(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	events, err := r.queries.TradeEvents(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] trade events failed ip=%s trade=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (r *Router) handleAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := r.queries.Audits(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] audit list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": records, "count": len(records)})
}
