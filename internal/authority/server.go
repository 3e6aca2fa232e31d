package authority

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"authmsg/internal/crypto"
	"authmsg/internal/domain"
)

// Backend is everything the server exposes.
type Backend interface {
	domain.Authority
	domain.IdentityIssuer
}

// Server serves a Backend over HTTP.
type Server struct {
	backend  Backend
	log      *slog.Logger
	mux      *http.ServeMux
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewServer builds the handler. Metrics are registered with reg when it is non-nil.
func NewServer(backend Backend, reg prometheus.Registerer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		backend: backend,
		log:     log,
		mux:     http.NewServeMux(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authmsg",
			Subsystem: "authority",
			Name:      "requests_total",
			Help:      "Authority API requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authmsg",
			Subsystem: "authority",
			Name:      "request_duration_seconds",
			Help:      "Authority API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(s.requests, s.latency)
	}

	s.handle("POST /v1/bind", "bind", s.bind)
	s.handle("POST /v1/rebind", "rebind", s.rebind)
	s.handle("POST /v1/verify", "verify", s.verify)
	s.handle("POST /v1/identity", "identity", s.identity)
	s.handle("GET /healthz", "healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// statusRecorder captures the status code for metrics and the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		elapsed := time.Since(start)
		s.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.latency.WithLabelValues(route).Observe(elapsed.Seconds())
		s.log.Debug("authority request",
			"method", r.Method,
			"route", route,
			"remote", r.RemoteAddr,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

func (s *Server) bind(w http.ResponseWriter, r *http.Request) {
	var in bindRequest
	if !decode(w, r, &in) {
		return
	}
	cred, err := s.backend.Bind(r.Context(), in.ClientID, in.ClientSecret, in.Scopes)
	s.reply(w, cred, err)
}

func (s *Server) rebind(w http.ResponseWriter, r *http.Request) {
	cred, err := s.backend.Rebind(r.Context(), domain.AccessCredential{Token: bearer(r)})
	s.reply(w, cred, err)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var in domain.VerificationRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := s.backend.RequestVerification(r.Context(), domain.AccessCredential{Token: bearer(r)}, in)
	s.reply(w, res, err)
}

func (s *Server) identity(w http.ResponseWriter, r *http.Request) {
	var in identityRequest
	if !decode(w, r, &in) {
		return
	}
	pub, err := crypto.PublicFromBytes(in.PublicKey)
	if err != nil {
		s.reply(w, nil, errInvalidPublicKey)
		return
	}
	grant, err := s.backend.RegisterIdentityKey(r.Context(), in.KeyToken, pub)
	s.reply(w, grant, err)
}

func (s *Server) reply(w http.ResponseWriter, v any, err error) {
	if err != nil {
		status, body := encodeError(err)
		if status >= 500 {
			s.log.Error("authority backend failure", "error", err)
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: codeBadRequest, Message: err.Error()})
		return false
	}
	return true
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
