package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// newRouter builds the HTTP surface:
//
//	GET  /ws         display link (mode tokens out, payloads in)
//	GET  /status     controller snapshot
//	POST /control    plain-text control value (queued)
//	POST /arm        arm the controller
//	POST /disarm     disarm and cancel playback
//	POST /play/:id   start a sequence
func newRouter(ctrl *Controller, inbox *Inbox, display http.Handler, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	if display != nil {
		r.GET("/ws", gin.WrapH(display))
	}

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Status())
	})

	r.POST("/control", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
			return
		}
		v, ok := parseControlPayload(body)
		if !ok || v > maxControlValue {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("control value must be an integer 0..%d", maxControlValue)})
			return
		}
		if !inbox.Offer(body, "http") {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inbox full"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": v})
	})

	r.POST("/arm", func(c *gin.Context) {
		ctrl.Arm()
		c.JSON(http.StatusOK, ctrl.Status())
	})

	r.POST("/disarm", func(c *gin.Context) {
		ctrl.Disarm()
		c.JSON(http.StatusOK, ctrl.Status())
	})

	r.POST("/play/:id", func(c *gin.Context) {
		id := c.Param("id")
		err := ctrl.PlaySequence(id, "http")
		switch {
		case err == nil:
			c.JSON(http.StatusAccepted, gin.H{"sequence": id})
		case errors.Is(err, ErrUnknownSequence):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrSessionActive), errors.Is(err, ErrDisarmed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	})

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx is canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
