package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/00-167cm/RAG-chatbot/internal/platform/config"
	"github.com/00-167cm/RAG-chatbot/internal/platform/container"
)

const shutdownTimeout = 10 * time.Second

// Server はRAGチャットボットのHTTP APIサーバ
type Server struct {
	engine *gin.Engine
	logger *slog.Logger
}

// NewServer はルーティングを構成したサーバを作成する
func NewServer(cont *container.ServiceContainer, cfg *config.Config) *Server {
	logger := cont.Logger()

	links, err := cfg.SourceLinks()
	if err != nil {
		logger.Warn("ソースリンク定義の読み込みに失敗", "error", err)
		links = map[string]string{}
	}

	h := &handler{
		container:   cont,
		sourceLinks: links,
		logger:      logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), corsMiddleware())

	engine.GET("/health", h.health)

	apiV1 := engine.Group("/api/v1")
	{
		apiV1.POST("/ingest", h.ingest)
		apiV1.GET("/conversations", h.listConversations)
		apiV1.POST("/conversations", h.createConversation)
		apiV1.GET("/conversations/:id", h.showConversation)
		apiV1.DELETE("/conversations/:id", h.deleteConversation)
		apiV1.POST("/conversations/:id/messages", h.postMessage)
	}

	return &Server{
		engine: engine,
		logger: logger,
	}
}

// Run はHTTPサーバを起動し、ctx のキャンセルでグレースフルに停止する
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバを起動", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("HTTPサーバを停止しています")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Handler はテストやカスタム構成用にルータを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger はリクエスト単位のアクセスログを出力する
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTPリクエスト",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
