package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"CampaignMailer/internal/dispatch"
	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/models"
)

// port accepts both "465" and 465.
type port int

func (p *port) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("smtp port %s: %w", b, err)
	}
	*p = port(n)
	return nil
}

type smtpFields struct {
	SMTPServer string `json:"smtpServer"`
	SMTPPort   port   `json:"smtpPort"`
	EmailUser  string `json:"emailUser"`
	EmailPass  string `json:"emailPass"`
}

func (f smtpFields) toSMTP() dispatch.SMTP {
	p := int(f.SMTPPort)
	if p == 0 {
		p = 587
	}
	return dispatch.SMTP{Host: f.SMTPServer, Port: p, User: f.EmailUser, Password: f.EmailPass}
}

type sendRequest struct {
	smtpFields

	ExcelPath   string            `json:"excelPath"`
	Rows        []models.Row      `json:"rows"`
	HTMLPath    string            `json:"htmlPath"`
	Template    string            `json:"template"`
	EmailColumn string            `json:"emailColumn"`
	NameColumn  string            `json:"nameColumn"`
	SubjectLine string            `json:"subjectLine"`
	SenderName  string            `json:"senderName"`
	Variables   []models.Variable `json:"variables"`

	// DelayBetweenEmails is in milliseconds.
	DelayBetweenEmails int `json:"delayBetweenEmails"`
}

func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req smtpFields
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.Dispatch.TestConnection(r.Context(), req.toSMTP()); err != nil {
		h.writeError(w, err)
		return
	}
	writeOK(w, "SMTP connection successful!", nil)
}

// Send returns as soon as the job is registered; sending continues in
// the background.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	started, err := h.Dispatch.Start(r.Context(), dispatch.Request{
		SpreadsheetPath: req.ExcelPath,
		Rows:            req.Rows,
		TemplatePath:    req.HTMLPath,
		Template:        req.Template,
		EmailColumn:     req.EmailColumn,
		NameColumn:      req.NameColumn,
		Subject:         req.SubjectLine,
		SenderName:      req.SenderName,
		Variables:       req.Variables,
		SMTP:            req.toSMTP(),
		Delay:           time.Duration(req.DelayBetweenEmails) * time.Millisecond,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeOK(w, "Email sending started", map[string]interface{}{
		"jobId":   started.JobID,
		"total":   started.Total,
		"limit":   started.Limit,
		"skipped": started.Skipped,
	})
}

func (h *Handler) StopSending(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"jobId"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.JobID == "" {
		h.writeError(w, fmt.Errorf("%w: Job ID is required", errs.ErrValidation))
		return
	}

	if err := h.Dispatch.Stop(req.JobID); err != nil {
		h.writeError(w, err)
		return
	}
	writeOK(w, "Stop signal sent. Email sending will stop after the current email completes.", nil)
}

func (h *Handler) SendStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Dispatch.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		models.JobStatus
	}{true, st})
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	list := h.Dispatch.Jobs()

	active := 0
	for _, j := range list {
		if j.Running() {
			active++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"jobs":            list,
		"totalActiveJobs": active,
	})
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n := h.Dispatch.Cleanup(h.Retention)
	writeOK(w, fmt.Sprintf("Cleaned up %d finished jobs", n), map[string]interface{}{
		"removed": n,
	})
}
