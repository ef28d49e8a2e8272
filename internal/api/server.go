// Package api exposes the ops HTTP surface: fleet status, fill history and a
// per-symbol clean restart.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"makerd/internal/engine"
	"makerd/internal/logger"
	"makerd/internal/store/journal"
)

type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 ops HTTP 服务依赖。
type ServerConfig struct {
	Addr    string
	Fleet   *engine.Fleet
	Journal *journal.Journal
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Fleet == nil {
		return nil, errors.New("ops http server requires a fleet")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9982"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	apiGroup.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"symbols": cfg.Fleet.Statuses()})
	})
	apiGroup.GET("/fills", func(c *gin.Context) {
		if cfg.Journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		symbol := strings.ToUpper(c.Query("symbol"))
		fills, err := cfg.Journal.ListFills(c.Request.Context(), symbol, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"fills": fills})
	})
	apiGroup.POST("/symbols/:symbol/restart", func(c *gin.Context) {
		symbol := c.Param("symbol")
		if err := cfg.Fleet.Restart(c.Request.Context(), symbol); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "restarted", "symbol": strings.ToUpper(symbol)})
	})

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口调用，便于追踪人工操作。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), client, time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
