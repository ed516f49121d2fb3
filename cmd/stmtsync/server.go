package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/config"
	"github.com/jask/stmtsync/internal/database/repository"
	"github.com/jask/stmtsync/internal/service"
	"github.com/jask/stmtsync/internal/statement"
)

type server struct {
	backend  *backend
	imports  *service.ImportService
	provider string
	logger   *log.Logger
	latency  *prometheus.HistogramVec
}

func newServer(b *backend, svc *service.ImportService, provider string, logger *log.Logger, reg *prometheus.Registry) http.Handler {
	s := &server{
		backend:  b,
		imports:  svc,
		provider: provider,
		logger:   logger,
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stmtsync_http_request_duration_seconds",
			Help:    "Latency distribution of API requests",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "endpoint"}),
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	api := r.PathPrefix("/api/v1/users/{user}").Subrouter()
	api.HandleFunc("/imports", s.timed("/imports", s.createImport)).Methods(http.MethodPost)
	api.HandleFunc("/reviews", s.timed("/reviews", s.listReviews)).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{tx}", s.timed("/reviews/{tx}", s.resolveReview)).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.timed("/rules", s.listRules)).Methods(http.MethodGet)
	api.HandleFunc("/transactions/categorize", s.timed("/transactions/categorize", s.categorize)).Methods(http.MethodPost)
	return r
}

func (s *server) timed(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(s.latency.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()
		h(w, r)
	}
}

func (s *server) createImport(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = s.provider
	}
	q := r.URL.Query()
	batch, err := decodeBatch(r.Context(), s.backend, r.Body, statement.BatchOptions{
		UserID:         user,
		Provider:       provider,
		SourceFilename: q.Get("filename"),
		AccountRef:     q.Get("account"),
	})
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.imports.Import(r.Context(), batch)
	s.respondWithImport(w, user, res, err)
}

func (s *server) respondWithImport(w http.ResponseWriter, user string, res service.ImportResult, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "invalid batch", "issues": verr.Issues})
	case err != nil:
		s.logger.Error("import", "user", user, "err", err)
		// Lines already written stay written; report them with the failure.
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "result": res})
	default:
		respondWithJSON(w, http.StatusOK, res)
	}
}

func (s *server) listReviews(w http.ResponseWriter, r *http.Request) {
	pending, err := s.imports.PendingReviews(r.Context(), mux.Vars(r)["user"])
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pending == nil {
		pending = []service.PendingReview{}
	}
	respondWithJSON(w, http.StatusOK, pending)
}

type resolveRequest struct {
	CandidateID string `json:"candidate_id"`
	Dismiss     bool   `json:"dismiss"`
}

func (s *server) resolveReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if (req.CandidateID == "") == !req.Dismiss {
		respondWithError(w, http.StatusBadRequest, "need exactly one of candidate_id or dismiss")
		return
	}
	if req.Dismiss {
		if err := s.imports.Dismiss(r.Context(), vars["user"], vars["tx"]); err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	merged, err := s.imports.ResolveReview(r.Context(), vars["user"], vars["tx"], req.CandidateID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyReconciled):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotReviewable):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	default:
		respondWithJSON(w, http.StatusOK, merged)
	}
}

func (s *server) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.imports.Rules.Rules(r.Context(), mux.Vars(r)["user"])
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rules == nil {
		rules = []repository.CategoryRule{}
	}
	respondWithJSON(w, http.StatusOK, rules)
}

type categorizeRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
	CategoryID     string   `json:"category_id"`
}

func (s *server) categorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	res, err := s.imports.Categorize(r.Context(), mux.Vars(r)["user"], req.TransactionIDs, req.CategoryID)
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "invalid request", "issues": verr.Issues})
	case errors.Is(err, repository.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	default:
		respondWithJSON(w, http.StatusOK, res)
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func serveCmd(ctx context.Context, b *backend, cfg config.Config, logger *log.Logger, args []string) error {
	fs := newFlags("serve")
	addr := fs.String("addr", cfg.Metrics.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" {
		*addr = ":8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	svc, release, err := newImportService(b, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer release()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newServer(b, svc, cfg.Import.Provider, logger, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening", "addr", *addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
