// Package handler serves the model over HTTP: training, spelling
// correction, phrase guessing, completion and model reset.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/tracing"
)

const maxBodyBytes = 8 << 20

// Model is the part of the autocompleter the handler serves.
type Model interface {
	Namespace() string
	Train(ctx context.Context, strs []string) (indexer.Stats, error)
	CorrectPhrase(ctx context.Context, phrase string) ([]string, error)
	CorrectPrefixes(ctx context.Context, phrase string) ([]string, error)
	GuessScored(ctx context.Context, tokens []string) ([]ranker.ScoredPhrase, error)
	Bust(ctx context.Context) (int, error)
}

// Routes served by Register, used as the metrics path labels.
var Routes = []string{
	"/api/v1/train",
	"/api/v1/correct",
	"/api/v1/guess",
	"/api/v1/complete",
	"/api/v1/bust",
	"/api/v1/cache/stats",
}

// CorrectResponse is the body of GET /api/v1/correct.
type CorrectResponse struct {
	Query  string   `json:"query"`
	Tokens []string `json:"tokens"`
}

// GuessResponse is the body of GET /api/v1/guess and GET /api/v1/complete.
type GuessResponse struct {
	Query     string                `json:"query,omitempty"`
	Tokens    []string              `json:"tokens"`
	Results   []ranker.ScoredPhrase `json:"results"`
	CacheHit  bool                  `json:"cache_hit"`
	LatencyMs float64               `json:"latency_ms"`
}

// TrainResponse is the body of POST /api/v1/train.
type TrainResponse struct {
	Status     string `json:"status"`
	Strings    int    `json:"strings"`
	Phrases    int    `json:"phrases"`
	NewPhrases int    `json:"new_phrases"`
	Skipped    int    `json:"skipped"`
	NewTokens  int    `json:"new_tokens"`
}

// Handler holds the model and the optional query cache and metrics.
type Handler struct {
	model         Model
	cache         *cache.QueryCache
	metrics       *metrics.Metrics
	maxTrainBatch int
	logger        *slog.Logger
}

// New creates a Handler. queryCache and m may be nil.
func New(model Model, queryCache *cache.QueryCache, m *metrics.Metrics, maxTrainBatch int) *Handler {
	return &Handler{
		model:         model,
		cache:         queryCache,
		metrics:       m,
		maxTrainBatch: maxTrainBatch,
		logger:        logger.ForModel("model-handler", model.Namespace()),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/train", h.Train)
	mux.HandleFunc("GET /api/v1/correct", h.Correct)
	mux.HandleFunc("GET /api/v1/guess", h.Guess)
	mux.HandleFunc("GET /api/v1/complete", h.Complete)
	mux.HandleFunc("POST /api/v1/bust", h.Bust)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

// Train adds the strings of a JSON TrainRequest to the model.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, ok := decodeTrainRequest(w, r, h.maxTrainBatch)
	if !ok {
		h.countTraining("rejected", 0)
		return
	}

	ctx, span := tracing.StartChildSpan(ctx, "train")
	stats, err := h.model.Train(ctx, req.Strings)
	span.EndErr(err)
	if err != nil {
		h.countTraining("error", 0)
		h.fail(w, log, "training failed", err)
		return
	}
	h.countTraining("ok", len(req.Strings)-stats.Skipped)
	h.invalidate(ctx, log)

	log.Info("model trained",
		"strings", len(req.Strings),
		"phrases", stats.Phrases,
		"new_phrases", stats.NewPhrases,
		"skipped", stats.Skipped,
		"keys_written", stats.KeysWritten,
	)
	h.writeJSON(w, http.StatusOK, TrainResponse{
		Status:     "trained",
		Strings:    len(req.Strings),
		Phrases:    stats.Phrases,
		NewPhrases: stats.NewPhrases,
		Skipped:    stats.Skipped,
		NewTokens:  stats.NewTokens,
	})
}

// Correct returns the corrected tokens of the q parameter.
func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	ctx, span := tracing.StartChildSpan(ctx, "correct")
	corrected, err := h.model.CorrectPhrase(ctx, query)
	span.EndErr(err)
	if err != nil {
		h.observeQuery("correct", "error", "none", start)
		h.fail(w, log, "correction failed", err)
		return
	}
	h.countCorrections(query, corrected)
	h.observeQuery("correct", resultLabel(len(corrected)), "none", start)
	log.Debug("phrase corrected", "query", query, "tokens", corrected)
	h.writeJSON(w, http.StatusOK, CorrectResponse{Query: query, Tokens: corrected})
}

// Guess returns the phrases best matching the token parameters. Each token
// parameter may hold several words; a missing token yields no results.
func (h *Handler) Guess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	tokens := tokenizer.Normalize(r.URL.Query()["token"])
	results, hit, err := h.guess(ctx, tokens)
	if err != nil {
		h.observeQuery("guess", "error", cacheLabel(h.cache, false), start)
		h.fail(w, log, "guess failed", err)
		return
	}
	results = truncate(results, limit)
	h.observeGuess("guess", results, hit, start)
	log.Debug("guess completed", "tokens", tokens, "returned", len(results), "cache_hit", hit)
	h.writeJSON(w, http.StatusOK, GuessResponse{
		Tokens:    nonNil(tokens),
		Results:   results,
		CacheHit:  hit,
		LatencyMs: elapsedMs(start),
	})
}

// Complete corrects a partially typed q and guesses full phrases from it.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	cctx, span := tracing.StartChildSpan(ctx, "correct")
	corrected, err := h.model.CorrectPrefixes(cctx, query)
	span.EndErr(err)
	if err != nil {
		h.observeQuery("complete", "error", cacheLabel(h.cache, false), start)
		h.fail(w, log, "completion failed", err)
		return
	}
	h.countCorrections(query, corrected)

	results, hit, err := h.guess(ctx, corrected)
	if err != nil {
		h.observeQuery("complete", "error", cacheLabel(h.cache, false), start)
		h.fail(w, log, "completion failed", err)
		return
	}
	results = truncate(results, limit)
	h.observeGuess("complete", results, hit, start)
	log.Debug("completion served", "query", query, "corrected", corrected, "returned", len(results), "cache_hit", hit)
	h.writeJSON(w, http.StatusOK, GuessResponse{
		Query:     query,
		Tokens:    corrected,
		Results:   results,
		CacheHit:  hit,
		LatencyMs: elapsedMs(start),
	})
}

// Bust deletes the model namespace.
func (h *Handler) Bust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	ctx, span := tracing.StartChildSpan(ctx, "bust")
	deleted, err := h.model.Bust(ctx)
	span.EndErr(err)
	if err != nil {
		h.fail(w, log, "bust failed", err)
		return
	}
	if h.metrics != nil {
		h.metrics.BustsTotal.Inc()
	}
	h.invalidate(ctx, log)
	log.Info("model busted", "keys_deleted", deleted)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "busted",
		"namespace":    h.model.Namespace(),
		"keys_deleted": deleted,
	})
}

// CacheStats reports query cache hits and misses.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) guess(ctx context.Context, tokens []string) ([]ranker.ScoredPhrase, bool, error) {
	ctx, span := tracing.StartChildSpan(ctx, "guess")
	compute := func() ([]ranker.ScoredPhrase, error) {
		return h.model.GuessScored(ctx, tokens)
	}
	var (
		results []ranker.ScoredPhrase
		hit     bool
		err     error
	)
	if h.cache != nil && len(tokens) > 0 {
		results, hit, err = h.cache.GetOrCompute(ctx, cache.OpGuess, tokens, compute)
	} else {
		results, err = compute()
	}
	span.SetAttr("cache_hit", hit)
	span.EndErr(err)
	return results, hit, err
}

func (h *Handler) invalidate(ctx context.Context, log *slog.Logger) {
	if h.cache == nil {
		return
	}
	if _, err := h.cache.Invalidate(ctx); err != nil {
		log.Warn("query cache not invalidated", "error", err)
	}
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) fail(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	log.Error(msg, "error", err, "status_code", status)
	switch status {
	case http.StatusServiceUnavailable:
		h.writeError(w, status, "model store unavailable")
	case http.StatusBadRequest:
		h.writeError(w, status, err.Error())
	default:
		h.writeError(w, status, msg)
	}
}

func (h *Handler) observeQuery(op, result, cacheStatus string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.QueriesTotal.WithLabelValues(op, result).Inc()
	h.metrics.QueryLatency.WithLabelValues(op, cacheStatus).Observe(time.Since(start).Seconds())
}

func (h *Handler) observeGuess(op string, results []ranker.ScoredPhrase, hit bool, start time.Time) {
	h.observeQuery(op, resultLabel(len(results)), cacheLabel(h.cache, hit), start)
	if h.metrics == nil {
		return
	}
	h.metrics.GuessResultsCount.Observe(float64(len(results)))
	if h.cache != nil {
		if hit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
}

func (h *Handler) countCorrections(query string, corrected []string) {
	if h.metrics == nil {
		return
	}
	original := tokenizer.Terms(query)
	for i := range min(len(original), len(corrected)) {
		if original[i] != corrected[i] {
			h.metrics.CorrectionsTotal.Inc()
		}
	}
}

func (h *Handler) countTraining(status string, trained int) {
	if h.metrics == nil {
		return
	}
	h.metrics.TrainingBatchesTotal.WithLabelValues("http", status).Inc()
	if trained > 0 {
		h.metrics.PhrasesTrainedTotal.Add(float64(trained))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// decodeTrainRequest reads and validates a TrainRequest body, writing the
// error response itself when the request is rejected.
func decodeTrainRequest(w http.ResponseWriter, r *http.Request, maxStrings int) (*ingestion.TrainRequest, bool) {
	var req ingestion.TrainRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return nil, false
	}
	if err := validator.ValidateTrainRequest(&req, maxStrings); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return nil, false
		}
		writeJSONError(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

func writeJSONError(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requireQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSONError(w, http.StatusBadRequest, map[string]any{"error": "query parameter 'q' is required"})
		return "", false
	}
	return query, true
}

func truncate(results []ranker.ScoredPhrase, limit int) []ranker.ScoredPhrase {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func resultLabel(n int) string {
	if n == 0 {
		return "empty"
	}
	return "ok"
}

func cacheLabel(c *cache.QueryCache, hit bool) string {
	switch {
	case c == nil:
		return "none"
	case hit:
		return "hit"
	default:
		return "miss"
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
