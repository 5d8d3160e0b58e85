package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketsync/stocksync-go/internal/application"
	"github.com/marketsync/stocksync-go/internal/config"
	"github.com/marketsync/stocksync-go/internal/domain"
	"github.com/marketsync/stocksync-go/internal/infrastructure/marketplace"
	"github.com/marketsync/stocksync-go/internal/metrics"
)

// Server agrupa deps para la capa HTTP.
type Server struct {
	cfg      config.Config
	ingest   *application.WebhookIngestService
	runs     *application.SyncRunService
	engine   *application.ReconciliationEngine
	registry *marketplace.Registry
}

func NewServer(
	cfg config.Config,
	ingest *application.WebhookIngestService,
	runs *application.SyncRunService,
	engine *application.ReconciliationEngine,
	registry *marketplace.Registry,
) *Server {
	return &Server{
		cfg:      cfg,
		ingest:   ingest,
		runs:     runs,
		engine:   engine,
		registry: registry,
	}
}

// RegisterRoutes wires all routes. Operator routes sit behind the API key
// middleware; the webhook route authenticates upstream by source instead
// (IP allow-listing is the proxy's job).
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/webhooks/orders", s.handleWebhook).Methods(http.MethodPost)

	ops := r.PathPrefix("/api").Subrouter()
	ops.Use(s.apiKeyMiddleware)
	ops.HandleFunc("/sync-logs", s.handleListSyncLogs).Methods(http.MethodGet)
	ops.HandleFunc("/sync-logs/failed", s.handleFailedSyncLogs).Methods(http.MethodGet)
	ops.HandleFunc("/sync-logs/running", s.handleRunningSyncLogs).Methods(http.MethodGet)
	ops.HandleFunc("/sync-logs/statistics", s.handleSyncStatistics).Methods(http.MethodGet)
	ops.HandleFunc("/sync-logs/failed-count", s.handleFailedCount).Methods(http.MethodGet)
	ops.HandleFunc("/sync-logs/platform/{platform}", s.handleSyncLogsByPlatform).Methods(http.MethodGet)
	ops.HandleFunc("/sync/{platform}", s.handleTriggerSync).Methods(http.MethodPost)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.ApiKey != "" && r.Header.Get("X-API-Key") != s.cfg.ApiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type webhookResponse struct {
	Result string `json:"result"`
}

// Handler POST /api/webhooks/orders
//
// 200: fully processed or fully duplicate; 206: some items failed;
// 400: malformed payload or unsupported event/state; 500: unhandled error.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload application.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.EventType == "" {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		http.Error(w, "invalid or missing event_type", http.StatusBadRequest)
		return
	}
	if payload.Order.Code == "" {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		http.Error(w, "missing order code", http.StatusBadRequest)
		return
	}

	outcome, err := s.ingest.Ingest(r.Context(), payload)
	if err != nil {
		log.Printf("Webhook: ingestion of order %s failed: %v", payload.Order.Code, err)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch outcome {
	case application.IngestProcessed:
		writeJSON(w, http.StatusOK, webhookResponse{Result: "ok"})
	case application.IngestPartial:
		writeJSON(w, http.StatusPartialContent, webhookResponse{Result: "partial"})
	case application.IngestDuplicate:
		writeJSON(w, http.StatusOK, webhookResponse{Result: "duplicate ignored"})
	case application.IngestUnsupportedState:
		http.Error(w, "unsupported order state", http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type syncRunResponse struct {
	ID              uuid.UUID `json:"id"`
	Platform        string    `json:"platform"`
	Direction       string    `json:"direction"`
	Operation       string    `json:"operation"`
	Status          string    `json:"status"`
	StartTime       string    `json:"startTime"`
	EndTime         *string   `json:"endTime,omitempty"`
	ItemsProcessed  int       `json:"itemsProcessed"`
	ItemsSuccessful int       `json:"itemsSuccessful"`
	ItemsFailed     int       `json:"itemsFailed"`
	Details         string    `json:"details,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	BatchID         string    `json:"batchId,omitempty"`
	DurationMs      *int64    `json:"durationMs,omitempty"`
}

type syncRunPageResponse struct {
	Items []syncRunResponse `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

// Handler GET /api/sync-logs
func (s *Server) handleListSyncLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page := intQuery(r, "page", 0)
	size := intQuery(r, "size", 20)

	runs, total, err := s.runs.Find(r.Context(), filter, page, size)
	if err != nil {
		log.Printf("ListSyncLogs error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, syncRunPageResponse{
		Items: toRunResponses(runs),
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// Handler GET /api/sync-logs/platform/{platform}
func (s *Server) handleSyncLogsByPlatform(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(mux.Vars(r)["platform"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	runs, err := s.runs.RecentByPlatform(r.Context(), platform)
	if err != nil {
		log.Printf("SyncLogsByPlatform error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponses(runs))
}

// Handler GET /api/sync-logs/failed
func (s *Server) handleFailedSyncLogs(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.FailedOperations(r.Context())
	if err != nil {
		log.Printf("FailedSyncLogs error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponses(runs))
}

// Handler GET /api/sync-logs/running
func (s *Server) handleRunningSyncLogs(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.RunningOperations(r.Context())
	if err != nil {
		log.Printf("RunningSyncLogs error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponses(runs))
}

type syncStatisticResponse struct {
	Platform  string `json:"platform"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Count     int64  `json:"count"`
}

// Handler GET /api/sync-logs/statistics?days=7
func (s *Server) handleSyncStatistics(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 7)
	since := time.Now().UTC().AddDate(0, 0, -days)

	stats, err := s.runs.Statistics(r.Context(), since)
	if err != nil {
		log.Printf("SyncStatistics error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]syncStatisticResponse, 0, len(stats))
	for _, st := range stats {
		out = append(out, syncStatisticResponse{
			Platform:  string(st.Platform),
			Operation: string(st.Operation),
			Status:    string(st.Status),
			Count:     st.Count,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Handler GET /api/sync-logs/failed-count?hours=24
func (s *Server) handleFailedCount(w http.ResponseWriter, r *http.Request) {
	hours := intQuery(r, "hours", 24)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	count, err := s.runs.FailedCountSince(r.Context(), since)
	if err != nil {
		log.Printf("FailedCount error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"failedCount": count})
}

// Handler POST /api/sync/{platform} - manual trigger. Responds 202; the
// full sync runs in the background and is observable through sync-logs.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(mux.Vars(r)["platform"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	client, err := s.registry.Get(platform)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	go func() {
		// Detached from the request context on purpose: a closed client
		// connection must not cancel a half-applied batch.
		if err := s.engine.FullSync(context.Background(), client); err != nil {
			log.Printf("Manual sync for %s failed: %v", platform, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "platform": string(platform)})
}

func parseFilter(r *http.Request) (domain.SyncRunFilter, error) {
	var filter domain.SyncRunFilter
	q := r.URL.Query()

	if v := q.Get("platform"); v != "" {
		p, err := domain.ParsePlatform(v)
		if err != nil {
			return filter, err
		}
		filter.Platform = &p
	}
	if v := q.Get("direction"); v != "" {
		d, err := domain.ParseSyncDirection(v)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if v := q.Get("operation"); v != "" {
		op, err := domain.ParseSyncOperation(v)
		if err != nil {
			return filter, err
		}
		filter.Operation = &op
	}
	if v := q.Get("status"); v != "" {
		st, err := domain.ParseSyncStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = &st
	}
	if v := q.Get("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("startDate must be RFC3339")
		}
		filter.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("endDate must be RFC3339")
		}
		filter.EndDate = &t
	}
	return filter, nil
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func toRunResponses(runs []*domain.SyncRun) []syncRunResponse {
	out := make([]syncRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	return out
}

func toRunResponse(run *domain.SyncRun) syncRunResponse {
	resp := syncRunResponse{
		ID:              run.ID,
		Platform:        string(run.Platform),
		Direction:       string(run.Direction),
		Operation:       string(run.Operation),
		Status:          string(run.Status),
		StartTime:       run.StartTime.UTC().Format(time.RFC3339),
		ItemsProcessed:  run.ItemsProcessed,
		ItemsSuccessful: run.ItemsSuccessful,
		ItemsFailed:     run.ItemsFailed,
		Details:         run.Details,
		ErrorMessage:    run.ErrorMessage,
		BatchID:         run.BatchID,
		DurationMs:      run.DurationMs,
	}
	if run.EndTime != nil {
		s := run.EndTime.UTC().Format(time.RFC3339)
		resp.EndTime = &s
	}
	return resp
}

// Util para escribir JSON
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON error: %v", err)
	}
}
