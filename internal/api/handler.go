package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/punchamoorthee/vrfmint/internal/event"
	"github.com/punchamoorthee/vrfmint/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrfmint_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vrfmint_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Options struct {
	// MintRateLimit is requests per second across both mint endpoints; 0 disables limiting.
	MintRateLimit float64
	MintRateBurst int
	// CallbackToken, when set, must be presented as a bearer token on /fulfillments.
	CallbackToken string
}

type Handler struct {
	service *service.MintService
	feed    *event.Feed
	limiter *rate.Limiter
	token   string
	log     logrus.FieldLogger
}

func NewHandler(svc *service.MintService, feed *event.Feed, opts Options, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handler{
		service: svc,
		feed:    feed,
		token:   opts.CallbackToken,
		log:     log.WithField("component", "api"),
	}
	if opts.MintRateLimit > 0 {
		burst := opts.MintRateBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.MintRateLimit), burst)
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	// full paths on r: a method mismatch under a PathPrefix subrouter reports 404, not 405
	r.Handle("/api/v1/mints", h.limited(http.HandlerFunc(h.RequestMintHandler), "/mints")).Methods("POST")
	r.Handle("/api/v1/mints/basic", h.limited(http.HandlerFunc(h.BasicMintHandler), "/mints/basic")).Methods("POST")
	r.HandleFunc("/api/v1/fulfillments", h.FulfillHandler).Methods("POST")
	r.HandleFunc("/api/v1/requests/{id}", h.GetRequestHandler).Methods("GET")
	r.HandleFunc("/api/v1/tokens/{id:[0-9]+}", h.GetTokenHandler).Methods("GET")
	r.HandleFunc("/api/v1/collection", h.GetCollectionHandler).Methods("GET")
	r.HandleFunc("/api/v1/events", h.StreamEventsHandler).Methods("GET")
}

func (h *Handler) limited(next http.Handler, endpoint string) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			h.respondError(w, http.StatusTooManyRequests, "Rate limit exceeded", r.Method, endpoint)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) authorizedCallback(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// respondServiceError maps service sentinels onto HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, service.ErrInsufficientPayment):
		h.respondError(w, http.StatusPaymentRequired, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrInvalidRequester):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrMalformedRandomness):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrUnknownRequest), errors.Is(err, service.ErrTokenNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrDuplicateRequest):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	default:
		h.log.WithError(err).WithField("endpoint", endpoint).Error("request failed")
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
