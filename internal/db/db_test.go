package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/models"
)

// Runs against a real Postgres when TEST_DATABASE_URL is set.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := New(url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCampaignLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &models.Campaign{
		Name:            "weekly digest",
		SpreadsheetPath: "uploads/excel/list.xlsx",
		Template:        "<p>Hi {{name}}</p>",
		EmailColumn:     "email",
		Subject:         "Digest",
		Variables:       []models.Variable{{Placeholder: "company", Column: "Company"}},
		SMTPHost:        "smtp.example.com",
		SMTPPort:        465,
		SMTPUser:        "me@example.com",
		SMTPPassword:    "secret",
		Delay:           1500 * time.Millisecond,
	}
	require.NoError(t, s.InsertCampaign(ctx, c))
	require.NotZero(t, c.ID)
	t.Cleanup(func() { _ = s.DeleteCampaign(ctx, c.ID) })

	got, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPending, got.Status)
	assert.Equal(t, c.Variables, got.Variables)
	assert.Equal(t, 1500*time.Millisecond, got.Delay)

	require.NoError(t, s.MarkScheduled(ctx, c.ID, "0 9 * * *", ""))
	list, err := s.ListScheduled(ctx)
	require.NoError(t, err)
	found := false
	for _, sc := range list {
		if sc.ID == c.ID {
			found = true
			assert.Equal(t, "0 9 * * *", sc.SchedulePattern)
		}
	}
	assert.True(t, found)

	require.NoError(t, s.MarkSending(ctx, c.ID, time.Now()))
	require.NoError(t, s.RecordFailure(ctx, c.ID, "535 auth failed"))
	got, _ = s.GetCampaign(ctx, c.ID)
	assert.Equal(t, models.CampaignScheduled, got.Status)
	assert.Equal(t, "535 auth failed", got.LastError)
	assert.NotNil(t, got.LastExecuted)

	require.NoError(t, s.MarkSending(ctx, c.ID, time.Now()))
	list, err = s.ListScheduled(ctx)
	require.NoError(t, err)
	assert.True(t, containsCampaign(list, c.ID), "sending rows are re-armed")

	require.NoError(t, s.CompleteExecution(ctx, c.ID))
	got, _ = s.GetCampaign(ctx, c.ID)
	assert.Equal(t, models.CampaignScheduled, got.Status)
	assert.Equal(t, 1, got.ExecutionCount)
	assert.Empty(t, got.LastError)

	// Completing again without a firing in progress changes nothing.
	require.NoError(t, s.CompleteExecution(ctx, c.ID))
	got, _ = s.GetCampaign(ctx, c.ID)
	assert.Equal(t, 1, got.ExecutionCount)

	require.NoError(t, s.MarkUnscheduled(ctx, c.ID))
	got, _ = s.GetCampaign(ctx, c.ID)
	assert.False(t, got.IsScheduled)
	assert.Equal(t, models.CampaignDraft, got.Status)
	assert.Empty(t, got.SchedulePattern)
}

func TestFiringEndAfterUnscheduleKeepsDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &models.Campaign{Name: "flash sale", EmailColumn: "email", Subject: "Sale", Template: "x"}
	require.NoError(t, s.InsertCampaign(ctx, c))
	t.Cleanup(func() { _ = s.DeleteCampaign(ctx, c.ID) })

	require.NoError(t, s.MarkScheduled(ctx, c.ID, "0 9 * * *", ""))
	require.NoError(t, s.MarkSending(ctx, c.ID, time.Now()))
	require.NoError(t, s.MarkUnscheduled(ctx, c.ID))

	require.NoError(t, s.CompleteExecution(ctx, c.ID))
	require.NoError(t, s.RecordFailure(ctx, c.ID, "late"))

	got, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsScheduled)
	assert.Equal(t, models.CampaignDraft, got.Status)
	assert.Zero(t, got.ExecutionCount)
	assert.Empty(t, got.LastError)

	assert.ErrorIs(t, s.MarkSending(ctx, c.ID, time.Now()), errs.ErrCampaignNotFound)
}

func containsCampaign(list []models.Campaign, id int64) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}

func TestMissingCampaign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetCampaign(ctx, -1)
	assert.ErrorIs(t, err, errs.ErrCampaignNotFound)
	assert.ErrorIs(t, s.SetStatus(ctx, -1, models.CampaignPaused), errs.ErrCampaignNotFound)
	assert.NoError(t, s.MarkUnscheduled(ctx, -1))
}
