package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"streamdash/internal/refresher"
	"streamdash/internal/stats"
	"streamdash/internal/store"
)

// Server exposes the buffered observations and the refresh controls over
// HTTP, plus a websocket feed of finished cycles.
type Server struct {
	engine  *gin.Engine
	httpSrv *http.Server
	coord   *refresher.Coordinator
	store   *store.Store
	hub     *Hub
}

// NewServer wires the routes. The caller owns the hub's lifecycle.
func NewServer(coord *refresher.Coordinator, st *store.Store, hub *Hub) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, coord: coord, store: st, hub: hub}

	api := engine.Group("/api")
	{
		api.GET("/snapshot", s.handleSnapshot)
		api.GET("/snapshot/:symbol", s.handleSymbolSnapshot)
		api.GET("/status", s.handleStatus)
		api.POST("/refresh", s.handleRefresh)
		api.PUT("/config", s.handleConfig)
	}
	engine.GET("/ws", func(c *gin.Context) {
		hub.Serve(c.Writer, c.Request)
	})

	return s
}

func (s *Server) handleSnapshot(c *gin.Context) {
	obs := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count":        len(obs),
		"observations": obs,
	})
}

func (s *Server) handleSymbolSnapshot(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	obs := s.store.SymbolSnapshot(symbol)
	if len(obs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for symbol " + symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":       symbol,
		"count":        len(obs),
		"observations": obs,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.coord.Status()

	summaries := make([]*stats.Summary, 0, len(status.Symbols))
	for _, sym := range s.store.Symbols() {
		summary, err := stats.Summarize(sym, s.store.SymbolSnapshot(sym))
		if err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}
	c.JSON(http.StatusOK, gin.H{
		"refresh":   status,
		"summaries": summaries,
	})
}

// handleRefresh schedules a manual cycle. It returns immediately; the cycle
// outcome arrives over the websocket feed and in /api/status.
func (s *Server) handleRefresh(c *gin.Context) {
	go s.coord.RefreshNow()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh scheduled"})
}

// configRequest carries partial configuration updates; absent fields keep
// their current values.
type configRequest struct {
	Symbols                []string `json:"symbols"`
	RefreshIntervalSeconds *int     `json:"refresh_interval_seconds"`
	AutoRefresh            *bool    `json:"auto_refresh"`
	HistoricalPeriod       *string  `json:"historical_period"`
	HistoricalInterval     *string  `json:"historical_interval"`
}

func (s *Server) handleConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if len(req.Symbols) > 0 {
		if err := s.coord.SetSymbols(req.Symbols); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.RefreshIntervalSeconds != nil {
		s.coord.SetInterval(*req.RefreshIntervalSeconds)
	}
	if req.AutoRefresh != nil {
		s.coord.SetAutoRefresh(*req.AutoRefresh)
	}
	if req.HistoricalPeriod != nil || req.HistoricalInterval != nil {
		status := s.coord.Status()
		period := status.HistoricalPeriod
		interval := status.HistoricalInterval
		if req.HistoricalPeriod != nil {
			period = *req.HistoricalPeriod
		}
		if req.HistoricalInterval != nil {
			interval = *req.HistoricalInterval
		}
		s.coord.SetHistoricalRange(period, interval)
	}

	c.JSON(http.StatusOK, gin.H{"refresh": s.coord.Status()})
}

// Start begins serving in the background.
func (s *Server) Start(addr string) {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	go func() {
		log.Printf("[INFO] http server listening on %s", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] http server: %v", err)
		}
	}()
}

// Shutdown stops the HTTP server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }
