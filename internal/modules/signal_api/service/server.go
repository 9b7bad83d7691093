package service

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"signal_trader/internal/models"
	"signal_trader/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server принимает сигналы от внешнего источника и кладёт их в канал
// раннера. Очередь ограничена: при заторе отвечаем 503, источник ретраит
// сам (доставка у него at-least-once, дубли режет агрегатор).
type Server struct {
	router *gin.Engine
	srv    *http.Server
	sink   chan<- models.Signal
}

type signalRequest struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol" binding:"required"`
	Kind      int            `json:"kind" binding:"required"`
	Timestamp int64          `json:"timestamp"` // unix ms, 0 = сейчас
	Payload   map[string]any `json:"payload"`
}

func NewServer(sink chan<- models.Signal) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{router: r, sink: sink}
	r.POST("/signals", s.handleSignal)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return s
}

func (s *Server) handleSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig := models.Signal{
		ID:      req.ID,
		Symbol:  strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Kind:    req.Kind,
		Payload: req.Payload,
	}
	if sig.ID == "" {
		// источник без id: генерим сами, дедуп по нему тогда формальный
		sig.ID = uuid.NewString()
	}
	if req.Timestamp > 0 {
		sig.Timestamp = time.UnixMilli(req.Timestamp)
	} else {
		sig.Timestamp = time.Now()
	}

	select {
	case s.sink <- sig:
		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "id": sig.ID})
	default:
		logger.Warn("signal queue full, dropping %s kind=%d", sig.Symbol, sig.Kind)
		c.JSON(http.StatusServiceUnavailable, gin.H{"accepted": false, "error": "queue full"})
	}
}

func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("signal api server: %v", err)
		}
	}()
	logger.Info("signal api listening on %s", addr)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
