package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires the routes. The middleware wraps the mux router itself so
// preflight requests and unmatched routes are also logged and get CORS headers.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}

	router := mux.NewRouter()
	router.HandleFunc("/", h.Root).Methods(http.MethodGet)
	router.HandleFunc("/emotion", h.Emotion).Methods(http.MethodPost)
	router.HandleFunc("/transcribe", h.Transcribe).Methods(http.MethodPost)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/ws", h.WebSocket)

	return RequestID(Logger(log)(CORS(router)))
}
