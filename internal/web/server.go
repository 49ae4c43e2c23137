package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/services/currency"
	"github.com/vadiminshakov/skinsync/internal/services/recommender"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	statePollInterval = time.Second
	heartbeatInterval = 30 * time.Second
)

type backend interface {
	Items(ctx context.Context) ([]domain.Item, error)
	Price(ctx context.Context, item domain.Item, useCache, forceRefresh bool) (domain.Result[domain.PriceQuote], error)
	History(ctx context.Context, item domain.Item) (domain.Result[domain.History], error)
	Predict(ctx context.Context, item domain.Item, horizon int) (domain.Result[domain.Prediction], error)
	StartRecommend(ctx context.Context, items []domain.Item, horizon int) error
	ResetCache(ctx context.Context) error
}

type engine interface {
	State() recommender.State
	LastSnapshot(ctx context.Context) (*domain.RecommendationSnapshot, error)
}

// Server exposes the synchronizers and the recommendation engine as a JSON API with an SSE
// stream of the engine state.
type Server struct {
	Addr     string
	backend  backend
	engine   engine
	currency string
	locale   language.Tag
	l        *zap.Logger
}

// NewServer creates a new web server instance. Prices are rendered in displayCurrency
// unless a request asks for another one.
func NewServer(addr string, b backend, e engine, displayCurrency string, locale language.Tag, l *zap.Logger) *Server {
	return &Server{Addr: addr, backend: b, engine: e, currency: displayCurrency, locale: locale, l: l}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/items", s.handleItems)
	r.GET("/prices", s.handlePrice)
	r.GET("/history", s.handleHistory)
	r.GET("/predict", s.handlePredict)
	r.POST("/cache/reset", s.handleReset)

	rec := r.Group("/recommendations")
	{
		rec.GET("", s.handleLastRecommendations)
		rec.POST("/run", s.handleRun)
		rec.GET("/state", s.handleState)
		rec.GET("/stream", s.handleStateStream)
	}

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("web API listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleItems(c *gin.Context) {
	items, err := s.backend.Items(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handlePrice(c *gin.Context) {
	item, cur, ok := s.itemQuery(c)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.Query("force_refresh"))

	res, err := s.backend.Price(c.Request.Context(), item, !force, force)
	if err != nil {
		s.fail(c, err)
		return
	}
	quote, err := currency.ConvertQuote(res.Value, cur)
	if err != nil {
		s.fail(c, err)
		return
	}

	lowest, _ := quote.Lowest()
	c.JSON(http.StatusOK, gin.H{
		"item":    item,
		"quote":   quote,
		"display": gin.H{"steam_price": quote.Steam.String(), "market_price": quote.Market.String(), "lis_skins_price": quote.LisSkins.String()},
		"lowest":  lowest,
		"source":  res.Source,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	item, cur, ok := s.itemQuery(c)
	if !ok {
		return
	}

	res, err := s.backend.History(c.Request.Context(), item)
	if err != nil {
		s.fail(c, err)
		return
	}
	h, err := currency.ConvertHistory(res.Value, cur)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item, "currency": cur, "history": h, "source": res.Source})
}

func (s *Server) handlePredict(c *gin.Context) {
	item, cur, ok := s.itemQuery(c)
	if !ok {
		return
	}
	horizon, err := strconv.Atoi(c.DefaultQuery("horizon", strconv.Itoa(domain.DefaultHorizon)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "horizon must be an integer"})
		return
	}

	res, err := s.backend.Predict(c.Request.Context(), item, horizon)
	if err != nil {
		s.fail(c, err)
		return
	}
	p, err := currency.ConvertPrediction(res.Value, cur)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item, "prediction": p, "source": res.Source})
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.backend.ResetCache(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleRun(c *gin.Context) {
	var req struct {
		Horizon int           `json:"horizon"`
		Items   []domain.Item `json:"items"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Horizon != 0 && !domain.ValidHorizon(req.Horizon) {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidHorizon.Error()})
		return
	}

	items := req.Items
	if len(items) == 0 {
		var err error
		if items, err = s.backend.Items(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
	}

	// the run outlives the request
	if err := s.backend.StartRecommend(c.Request.Context(), items, req.Horizon); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "items": len(items)})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.State())
}

func (s *Server) handleLastRecommendations(c *gin.Context) {
	cur := c.DefaultQuery("currency", s.currency)
	if !currency.IsSupported(cur) {
		s.fail(c, errors.Wrapf(currency.ErrUnknownCurrency, "%q", cur))
		return
	}

	snap, err := s.engine.LastSnapshot(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	all := snap.All
	if sortBy := c.Query("sort"); sortBy != "" {
		col, ok := recommender.ParseColumn(sortBy)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown sort column %q", sortBy)})
			return
		}
		table := recommender.NewTable(all, s.locale)
		if rawDir, ok := c.GetQuery("dir"); ok {
			dir, ok := recommender.ParseDirection(rawDir)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown sort direction %q", rawDir)})
				return
			}
			table.SortBy(col, dir)
		} else {
			// a fresh table sorts descending on its first toggle
			table.Toggle(col)
		}
		all = table.Records()
	}

	if all, err = currency.ConvertRecords(all, cur); err != nil {
		s.fail(c, err)
		return
	}
	digest := snap.Digest
	if digest.TopGainers, err = currency.ConvertRecords(digest.TopGainers, cur); err != nil {
		s.fail(c, err)
		return
	}
	if digest.TopLosers, err = currency.ConvertRecords(digest.TopLosers, cur); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.RecommendationSnapshot{
		ID:        snap.ID,
		Horizon:   snap.Horizon,
		Digest:    digest,
		All:       all,
		Timestamp: snap.Timestamp,
	})
}

// handleStateStream pushes the engine state whenever it changes.
func (s *Server) handleStateStream(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// send a comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(statePollInterval)
	defer pollTicker.Stop()

	var last *recommender.State
	sendState := func() error {
		st := s.engine.State()
		if last != nil && *last == st {
			return nil
		}
		payload, err := json.Marshal(st)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "event: state\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		last = &st
		return nil
	}

	if err := sendState(); err != nil {
		s.l.Error("state stream initial send", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendState(); err != nil {
				s.l.Error("state stream poll", zap.Error(err))
			}
		}
	}
}

// itemQuery reads appid, market_hash_name and currency query params.
func (s *Server) itemQuery(c *gin.Context) (domain.Item, string, bool) {
	item := domain.Item{AppID: c.Query("appid"), MarketHashName: c.Query("market_hash_name")}
	if err := item.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.Item{}, "", false
	}
	cur := c.DefaultQuery("currency", s.currency)
	if !currency.IsSupported(cur) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported currency %q", cur)})
		return domain.Item{}, "", false
	}
	return item, cur, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, clients.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidHorizon), errors.Is(err, currency.ErrUnknownCurrency):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPredictionUnavailable), errors.Is(err, clients.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, recommender.ErrRunInProgress):
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		s.l.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
