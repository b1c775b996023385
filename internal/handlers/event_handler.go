package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/telhawk-systems/telhawk-relay/common/httputil"
	"github.com/telhawk-systems/telhawk-relay/common/logging"
	"github.com/telhawk-systems/telhawk-relay/internal/metrics"
	"github.com/telhawk-systems/telhawk-relay/internal/models"
	"github.com/telhawk-systems/telhawk-relay/internal/ratelimit"
	"github.com/telhawk-systems/telhawk-relay/internal/service"
)

// Response bodies returned to the Logic App.
const (
	MessageLogged        = "Logged to Application Insights"
	MessageMissingFields = "Please pass MessageID, Status, Sender and Receiver in the request body."
)

// EventForwarder is the service surface the handler depends on.
type EventForwarder interface {
	Forward(ctx context.Context, body []byte) (map[string]string, error)
	GetStats() models.ForwardingStats
	MirrorHealthy() bool
}

type EventHandler struct {
	forwarder    EventForwarder
	limiter      ratelimit.RateLimiter
	maxBodyBytes int64
	logger       *logging.Logger
}

// NewEventHandler creates an EventHandler. A nil limiter disables rate
// limiting; maxBodyBytes <= 0 disables the body limit.
func NewEventHandler(forwarder EventForwarder, limiter ratelimit.RateLimiter, maxBodyBytes int64, logger *logging.Logger) *EventHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EventHandler{
		forwarder:    forwarder,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HandleEvent accepts one delivery event and forwards it as telemetry.
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.logger.InfoContext(ctx, "processed a request",
		logging.Method(r.Method),
		logging.Path(r.URL.Path),
	)

	defer func() {
		if rec := recover(); rec != nil {
			h.fail(ctx, w, metrics.OutcomeDeliveryError, fmt.Errorf("panic: %v", rec))
		}
	}()

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeMethodNotAllow).Inc()
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost}, ", "))
		httputil.WriteStatus(w, http.StatusMethodNotAllowed)
		return
	}

	clientIP := httputil.GetClientIP(r)
	allowed, err := h.limiter.Allow(ctx, clientIP)
	if err != nil {
		// Fail open: a limiter outage must not drop deliveries.
		h.logger.WarnContext(ctx, "rate limit check failed", logging.IP(clientIP), logging.Error(err))
		allowed = true
	}
	if !allowed {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		httputil.WriteStatus(w, http.StatusTooManyRequests)
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RequestsTotal.WithLabelValues(metrics.OutcomeTooLarge).Inc()
			h.logger.WarnContext(ctx, "request body too large", logging.IP(clientIP), logging.Error(err))
			httputil.WriteStatus(w, http.StatusRequestEntityTooLarge)
			return
		}
		h.fail(ctx, w, metrics.OutcomeDecodeError, err)
		return
	}
	metrics.RequestBytesTotal.Add(float64(len(body)))

	props, err := h.forwarder.Forward(ctx, body)
	if err != nil {
		var decodeErr *service.DecodeError
		switch {
		case errors.Is(err, service.ErrMissingFields):
			metrics.RequestsTotal.WithLabelValues(metrics.OutcomeMissingFields).Inc()
			httputil.WriteText(w, http.StatusBadRequest, MessageMissingFields)
		case errors.As(err, &decodeErr):
			h.fail(ctx, w, metrics.OutcomeDecodeError, err)
		default:
			h.fail(ctx, w, metrics.OutcomeDeliveryError, err)
		}
		return
	}

	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeForwarded).Inc()
	h.logger.DebugContext(ctx, "event forwarded",
		logging.EventName(models.EventName),
		logging.MessageID(props[models.PropMessageID]),
	)
	httputil.WriteText(w, http.StatusOK, MessageLogged)
}

func (h *EventHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	var reader io.Reader = r.Body
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

// fail logs err and answers 500 with an empty body.
func (h *EventHandler) fail(ctx context.Context, w http.ResponseWriter, outcome string, err error) {
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	h.logger.ErrorContext(ctx, "failed to forward event",
		logging.Outcome(outcome),
		logging.Error(err),
	)
	httputil.WriteStatus(w, http.StatusInternalServerError)
}

func (h *EventHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *EventHandler) Ready(w http.ResponseWriter, r *http.Request) {
	stats := h.forwarder.GetStats()

	// The mirror is secondary; a disconnected bus is reported, not failed.
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ready",
		"mirror_healthy": h.forwarder.MirrorHealthy(),
		"stats":          stats,
	})
}
