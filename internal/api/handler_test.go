package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"CampaignMailer/internal/dispatch"
	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/models"
	"CampaignMailer/internal/scheduler"
)

type stubDispatcher struct {
	lastReq   dispatch.Request
	startErr  error
	jobs      map[string]models.JobStatus
	stopped   []string
	verifyErr error
	swept     time.Duration
}

func (s *stubDispatcher) Start(_ context.Context, req dispatch.Request) (dispatch.Started, error) {
	s.lastReq = req
	if s.startErr != nil {
		return dispatch.Started{}, s.startErr
	}
	return dispatch.Started{JobID: "job-1", Total: 500, Limit: 500, Skipped: 100}, nil
}

func (s *stubDispatcher) Stop(id string) error {
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", errs.ErrJobNotFound, id)
	}
	s.stopped = append(s.stopped, id)
	return nil
}

func (s *stubDispatcher) Status(id string) (models.JobStatus, error) {
	st, ok := s.jobs[id]
	if !ok {
		return models.JobStatus{}, fmt.Errorf("%w: %s", errs.ErrJobNotFound, id)
	}
	return st, nil
}

func (s *stubDispatcher) Jobs() []models.JobStatus {
	out := make([]models.JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *stubDispatcher) TestConnection(context.Context, dispatch.SMTP) error { return s.verifyErr }

func (s *stubDispatcher) Cleanup(retention time.Duration) int {
	s.swept = retention
	return 3
}

type stubScheduler struct {
	scheduled models.Campaign
	err       error
}

func (s *stubScheduler) Schedule(_ context.Context, c models.Campaign) error {
	if _, err := scheduler.NextExecutions(c.SchedulePattern, "UTC", time.Now(), 1); err != nil {
		return err
	}
	s.scheduled = c
	return nil
}

func (s *stubScheduler) Unschedule(_ context.Context, raw string) error {
	_, err := scheduler.ParseCampaignID(raw)
	return err
}

func (s *stubScheduler) Pause(_ context.Context, raw string) (int, error) {
	if _, err := scheduler.ParseCampaignID(raw); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *stubScheduler) Scheduled() []int64 { return []int64{42} }

func (s *stubScheduler) Timezone() string { return "UTC" }

type stubCampaigns map[int64]models.Campaign

func (s stubCampaigns) GetCampaign(_ context.Context, id int64) (models.Campaign, error) {
	c, ok := s[id]
	if !ok {
		return models.Campaign{}, fmt.Errorf("%w: %d", errs.ErrCampaignNotFound, id)
	}
	return c, nil
}

func newTestServer(d *stubDispatcher) http.Handler {
	h := &Handler{
		Dispatch:  d,
		Schedule:  &stubScheduler{},
		Campaigns: stubCampaigns{42: {ID: 42, Name: "weekly"}},
		Log:       zap.NewNop(),
		Retention: time.Hour,
	}
	return h.Routes()
}

func do(t *testing.T, srv http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestSendStartsJob(t *testing.T) {
	d := &stubDispatcher{}
	srv := newTestServer(d)

	rec, out := do(t, srv, http.MethodPost, "/send", map[string]interface{}{
		"excelPath":          "uploads/excel/list.xlsx",
		"template":           "<p>Hi {{name}}</p>",
		"emailColumn":        "email",
		"subjectLine":        "Hello",
		"smtpServer":         "smtp.example.com",
		"smtpPort":           "465",
		"emailUser":          "me@example.com",
		"emailPass":          "secret",
		"delayBetweenEmails": 1500,
		"variables":          []map[string]string{{"placeholder": "company", "column": "Company"}},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "job-1", out["jobId"])
	assert.Equal(t, float64(100), out["skipped"])

	assert.Equal(t, 465, d.lastReq.SMTP.Port)
	assert.Equal(t, 1500*time.Millisecond, d.lastReq.Delay)
	assert.Equal(t, []models.Variable{{Placeholder: "company", Column: "Company"}}, d.lastReq.Variables)
}

func TestSendValidationError(t *testing.T) {
	d := &stubDispatcher{startErr: fmt.Errorf("%w: missing required parameters", errs.ErrValidation)}
	rec, out := do(t, newTestServer(d), http.MethodPost, "/send", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["message"], "missing required parameters")
}

func TestStatusAndStop(t *testing.T) {
	d := &stubDispatcher{jobs: map[string]models.JobStatus{
		"job-1": {ID: "job-1", Total: 10, Sent: 4, Failed: 1},
	}}
	srv := newTestServer(d)

	rec, out := do(t, srv, http.MethodGet, "/send-status/job-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(10), out["total"])
	assert.Equal(t, float64(4), out["sent"])
	assert.Equal(t, false, out["completed"])
	assert.Nil(t, out["endTime"])

	rec, _ = do(t, srv, http.MethodGet, "/send-status/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/stop-sending", map[string]string{"jobId": "job-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-1"}, d.stopped)

	rec, _ = do(t, srv, http.MethodPost, "/stop-sending", map[string]string{"jobId": "gone"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/stop-sending", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	d := &stubDispatcher{jobs: map[string]models.JobStatus{
		"a": {ID: "a"},
		"b": {ID: "b", Completed: true},
	}}
	rec, out := do(t, newTestServer(d), http.MethodGet, "/jobs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["totalActiveJobs"])
	assert.Len(t, out["jobs"], 2)
}

func TestCleanup(t *testing.T) {
	d := &stubDispatcher{}
	rec, out := do(t, newTestServer(d), http.MethodPost, "/cleanup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), out["removed"])
	assert.Equal(t, time.Hour, d.swept)
}

func TestTestConnection(t *testing.T) {
	d := &stubDispatcher{verifyErr: fmt.Errorf("%w: 535 auth failed", errs.ErrTransport)}
	rec, out := do(t, newTestServer(d), http.MethodPost, "/test-connection", map[string]interface{}{
		"smtpServer": "smtp.example.com", "smtpPort": 587, "emailUser": "u", "emailPass": "p",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["message"], "535")
}

func TestScheduleRoutes(t *testing.T) {
	srv := newTestServer(&stubDispatcher{})

	rec, _ := do(t, srv, http.MethodPost, "/campaigns/42/schedule", map[string]string{"schedulePattern": "0 9 * * *"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/campaigns/42/schedule", map[string]string{"schedulePattern": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/campaigns/7/schedule", map[string]string{"schedulePattern": "0 9 * * *"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, http.MethodDelete, "/campaigns/42/schedule", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv, http.MethodDelete, "/campaigns/abc/schedule", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := do(t, srv, http.MethodPost, "/campaigns/42/pause", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["jobsStopped"])
}

func TestValidatePatternRoute(t *testing.T) {
	srv := newTestServer(&stubDispatcher{})

	_, out := do(t, srv, http.MethodPost, "/schedule/validate", map[string]string{"pattern": "0 18 * * *"})
	assert.Equal(t, true, out["valid"])

	_, out = do(t, srv, http.MethodPost, "/schedule/validate", map[string]string{"pattern": "bad"})
	assert.Equal(t, false, out["valid"])
	assert.NotEmpty(t, out["error"])
}

func TestNextExecutionsRoute(t *testing.T) {
	srv := newTestServer(&stubDispatcher{})

	rec, out := do(t, srv, http.MethodGet, "/schedule/next?pattern=0+9+*+*+*&count=3", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["executions"], 3)

	rec, _ = do(t, srv, http.MethodGet, "/schedule/next?pattern=0+9+*+*+*&count=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	rec, out := do(t, newTestServer(&stubDispatcher{}), http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, out["success"])
}
