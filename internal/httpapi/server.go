// Package httpapi serves the tracking, journey and prediction ports to web
// UI surfaces.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	journeydto "pathwise/internal/modules/journey/dto"
	journeyin "pathwise/internal/modules/journey/port/in"
	predictiondomain "pathwise/internal/modules/prediction/domain"
	predictiondto "pathwise/internal/modules/prediction/dto"
	predictionin "pathwise/internal/modules/prediction/port/in"
	sessionin "pathwise/internal/modules/session/port/in"
	apperrors "pathwise/internal/platform/errors"
)

const sessionHeader = "X-Pathwise-Session"

type Deps struct {
	Journeys    journeyin.Usecase
	Predictions predictionin.Usecase
	// Sessions resolves the active session for requests that name none. Optional.
	Sessions       sessionin.Usecase
	DefaultSession string
	AllowedOrigins []string
	Logger         *zap.Logger
}

type handler struct {
	deps Deps
}

// NewRouter builds the gin engine with every /v1 route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := handler{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger), corsMiddleware(deps.AllowedOrigins))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/actions", h.trackAction)
		v1.GET("/actions", h.listActions)
		v1.GET("/journeys/open", h.openJourney)
		v1.GET("/chat-context", h.chatContext)

		predictions := v1.Group("/predictions")
		{
			predictions.GET("/latest", h.latestPrediction)
			predictions.GET("/status", h.predictionStatus)
			predictions.POST("", h.predictNow)
			predictions.DELETE("/pending", h.cancelPending)
		}
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowHeaders = append(cfg.AllowHeaders, sessionHeader)
	return cors.New(cfg)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

type trackRequest struct {
	SessionID       string             `json:"sessionId"`
	FeatureArea     string             `json:"featureArea" binding:"required"`
	ActionType      string             `json:"actionType" binding:"required"`
	SourceComponent string             `json:"sourceComponent"`
	Payload         journeydto.Payload `json:"payload"`
	DurationMS      int64              `json:"durationMs"`
}

func (h handler) trackAction(c *gin.Context) {
	var body trackRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = h.session(c)
	}
	component := body.SourceComponent
	if component == "" {
		component = "web"
	}
	out, err := h.deps.Journeys.Track(c.Request.Context(), journeydto.TrackInput{
		SessionID:       sessionID,
		FeatureArea:     body.FeatureArea,
		ActionType:      body.ActionType,
		SourceComponent: component,
		Payload:         body.Payload,
		DurationMS:      body.DurationMS,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h handler) listActions(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}
	actions, err := h.deps.Journeys.History(c.Request.Context(), journeydto.HistoryInput{SessionID: h.session(c), Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (h handler) openJourney(c *gin.Context) {
	journey, ok, err := h.deps.Journeys.OpenJourney(c.Request.Context(), h.session(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open journey"})
		return
	}
	c.JSON(http.StatusOK, journey)
}

func (h handler) chatContext(c *gin.Context) {
	maxActions, ok := intQuery(c, "maxActions", 25)
	if !ok {
		return
	}
	maxAge, ok := intQuery(c, "maxAgeMinutes", 30)
	if !ok {
		return
	}
	out, err := h.deps.Journeys.ChatContext(c.Request.Context(), journeydto.ChatContextInput{SessionID: h.session(c), MaxActions: maxActions, MaxAgeMinutes: maxAge})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h handler) latestPrediction(c *gin.Context) {
	out, ok, err := h.deps.Predictions.Latest(c.Request.Context(), h.session(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h handler) predictionStatus(c *gin.Context) {
	out, err := h.deps.Predictions.Status(c.Request.Context(), h.session(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h handler) predictNow(c *gin.Context) {
	out, err := h.deps.Predictions.PredictNow(c.Request.Context(), predictiondto.PredictInput{SessionID: h.session(c)})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h handler) cancelPending(c *gin.Context) {
	if err := h.deps.Predictions.Cancel(c.Request.Context(), h.session(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// session picks the query parameter, then the header, then the active
// session, then the configured default.
func (h handler) session(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("session")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetHeader(sessionHeader)); id != "" {
		return id
	}
	if h.deps.Sessions != nil {
		if active, err := h.deps.Sessions.GetActive(c.Request.Context()); err == nil && active.SessionID != "" {
			return active.SessionID
		}
	}
	return h.deps.DefaultSession
}

func intQuery(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, predictiondomain.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, predictiondomain.ErrRoundFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
