package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"CampaignMailer/internal/dispatch"
	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/models"
)

// Dispatcher is the job-control surface. *dispatch.Dispatcher
// satisfies it.
type Dispatcher interface {
	Start(ctx context.Context, req dispatch.Request) (dispatch.Started, error)
	Stop(jobID string) error
	Status(jobID string) (models.JobStatus, error)
	Jobs() []models.JobStatus
	TestConnection(ctx context.Context, s dispatch.SMTP) error
	Cleanup(retention time.Duration) int
}

// Scheduler is the schedule-control surface. *scheduler.Scheduler
// satisfies it.
type Scheduler interface {
	Schedule(ctx context.Context, c models.Campaign) error
	Unschedule(ctx context.Context, rawID string) error
	Pause(ctx context.Context, rawID string) (int, error)
	Scheduled() []int64
	Timezone() string
}

type Campaigns interface {
	GetCampaign(ctx context.Context, id int64) (models.Campaign, error)
}

type Handler struct {
	Dispatch  Dispatcher
	Schedule  Scheduler
	Campaigns Campaigns
	Log       *zap.Logger

	// Retention is how long finished jobs stay visible before cleanup
	// reclaims them.
	Retention time.Duration
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Post("/test-connection", h.TestConnection)
	r.Post("/send", h.Send)
	r.Post("/stop-sending", h.StopSending)
	r.Get("/send-status/{jobID}", h.SendStatus)
	r.Get("/jobs", h.ListJobs)
	r.Post("/cleanup", h.Cleanup)

	r.Route("/schedule", func(r chi.Router) {
		r.Post("/validate", h.ValidatePattern)
		r.Get("/next", h.NextExecutions)
		r.Get("/patterns", h.Patterns)
		r.Get("/campaigns", h.ScheduledCampaigns)
	})

	r.Route("/campaigns/{campaignID}", func(r chi.Router) {
		r.Post("/schedule", h.ScheduleCampaign)
		r.Delete("/schedule", h.UnscheduleCampaign)
		r.Post("/pause", h.PauseCampaign)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": "Endpoint not found",
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, j := range h.Dispatch.Jobs() {
		if j.Running() {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"status":     "ok",
		"activeJobs": active,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, message string, extra map[string]interface{}) {
	body := map[string]interface{}{
		"success": true,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrJobNotFound), errors.Is(err, errs.ErrCampaignNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrSchedule),
		errors.Is(err, errs.ErrTransport):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.Error(err))
	}

	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": err.Error(),
	})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrValidation, err)
	}
	return nil
}
