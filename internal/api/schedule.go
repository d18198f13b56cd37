package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/scheduler"
)

func (h *Handler) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := scheduler.ParseCampaignID(chi.URLParam(r, "campaignID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		Pattern  string `json:"schedulePattern"`
		Timezone string `json:"timezone"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	c, err := h.Campaigns.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	c.SchedulePattern = req.Pattern
	if req.Timezone != "" {
		c.Timezone = req.Timezone
	}

	if err := h.Schedule.Schedule(r.Context(), c); err != nil {
		h.writeError(w, err)
		return
	}
	writeOK(w, "Campaign scheduled successfully", map[string]interface{}{
		"campaignId": id,
		"pattern":    req.Pattern,
	})
}

func (h *Handler) UnscheduleCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.Schedule.Unschedule(r.Context(), chi.URLParam(r, "campaignID")); err != nil {
		h.writeError(w, err)
		return
	}
	writeOK(w, "Campaign unscheduled successfully", nil)
}

func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	n, err := h.Schedule.Pause(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("Campaign paused successfully. Stopped %d active jobs.", n), map[string]interface{}{
		"jobsStopped": n,
	})
}

func (h *Handler) ScheduledCampaigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"campaigns": h.Schedule.Scheduled(),
	})
}

func (h *Handler) ValidatePattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduler.ValidatePattern(req.Pattern))
}

func (h *Handler) NextExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	count := 5
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 50 {
			h.writeError(w, fmt.Errorf("%w: count must be between 1 and 50", errs.ErrValidation))
			return
		}
		count = n
	}

	tz := q.Get("timezone")
	if tz == "" {
		tz = h.Schedule.Timezone()
	}

	times, err := scheduler.NextExecutions(q.Get("pattern"), tz, time.Now(), count)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"executions": times,
	})
}

func (h *Handler) Patterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"patterns": scheduler.Patterns,
	})
}
