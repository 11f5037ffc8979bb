// Package handler accepts training strings over HTTP and queues them on the
// training topic instead of training in the request.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
)

const maxBodyBytes = 8 << 20

// BatchPublisher is the part of publisher.Publisher the handler needs.
type BatchPublisher interface {
	Publish(ctx context.Context, source string, strs []string) ([]string, error)
}

type Handler struct {
	publisher  BatchPublisher
	maxStrings int
	logger     *slog.Logger
}

func New(pub BatchPublisher, maxStrings int) *Handler {
	return &Handler{
		publisher:  pub,
		maxStrings: maxStrings,
		logger:     logger.WithComponent("training-ingest"),
	}
}

// Enqueue serves POST /api/v1/train/async.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.TrainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateTrainRequest(&req, h.maxStrings); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, err := h.publisher.Publish(ctx, "http", req.Strings)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(apperrors.Unavailable("publish", "training topic", err))
		log.Error("queueing training strings failed", "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "training queue unavailable")
		return
	}
	log.Info("training strings queued", "strings", len(req.Strings), "batches", len(ids))
	h.writeJSON(w, http.StatusAccepted, ingestion.TrainResponse{
		Status:   "queued",
		Strings:  len(req.Strings),
		Batches:  len(ids),
		BatchIDs: ids,
	})
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
