// Package worker runs send jobs: one goroutine per job, recipients in
// order, one message at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"CampaignMailer/internal/assets"
	"CampaignMailer/internal/email"
	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/jobs"
	"CampaignMailer/internal/metrics"
	"CampaignMailer/internal/models"
	"CampaignMailer/internal/recipients"
	"CampaignMailer/internal/render"
)

const DefaultSenderName = "Email Marketing Tool"

// Transport is what the engine needs from a delivery transport.
// *email.Transport satisfies it.
type Transport interface {
	Send(ctx context.Context, msg *models.Message) error
	Close() error
}

// Job is everything one run of the send loop needs. Recipients must
// already be filtered and capped.
type Job struct {
	ID          string
	Recipients  []models.Row
	EmailColumn string
	NameColumn  string
	Subject     string
	SenderName  string
	FromAddress string
	Template    string
	Variables   []models.Variable
	Delay       time.Duration
}

type Engine struct {
	Registry *jobs.Registry
	Log      *zap.Logger

	UploadsDir        string
	DefaultSenderName string

	// Retries is the number of extra attempts per recipient after the
	// first one fails.
	Retries    int
	RetryDelay time.Duration
}

// Start runs the job in its own goroutine. rec must already be in the
// registry so status requests never miss a job that is about to start.
func (e *Engine) Start(ctx context.Context, rec *jobs.Record, job Job, tr Transport) {
	go func() {
		_ = e.Run(ctx, rec, job, tr)
	}()
}

// Run drives the job to completion, stop or fatal error. The record is
// always left completed with an end time, and the transport is closed.
func (e *Engine) Run(ctx context.Context, rec *jobs.Record, job Job, tr Transport) (err error) {
	log := e.Log.With(zap.String("job_id", job.ID))

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send loop panic: %v", p)
		}

		msg := ""
		if err != nil {
			msg = err.Error()
			log.Error("send job failed", zap.Error(err))
		}
		rec.Finish(time.Now(), msg)

		if cerr := tr.Close(); cerr != nil {
			log.Warn("transport close failed", zap.Error(cerr))
		}

		st := rec.Snapshot()
		log.Info("send job finished",
			zap.Int("total", st.Total),
			zap.Int("sent", st.Sent),
			zap.Int("failed", st.Failed),
			zap.Bool("stopped", st.Stopped),
		)
	}()

	attachments := assets.ForTemplate(job.Template, e.UploadsDir, log)

	log.Info("send job started",
		zap.Int("recipients", len(job.Recipients)),
		zap.Int("attachments", len(attachments)),
	)

	sent, failed := 0, 0

	for i, row := range job.Recipients {

		// ----------------------------
		// Stop check
		// ----------------------------
		if e.stopRequested(job.ID, rec) {
			rec.SetProgress(sent, failed)
			rec.MarkStopped()
			log.Info("send job stopped", zap.Int("remaining", len(job.Recipients)-i))
			return nil
		}

		// ----------------------------
		// Render + Send
		// ----------------------------
		msg := e.compose(job, row, attachments)

		if err := e.deliver(ctx, log, tr, msg); err != nil {
			if errors.Is(err, email.ErrTransportClosed) {
				rec.SetProgress(sent, failed)
				return fmt.Errorf("%w: %w", errs.ErrTransport, err)
			}

			log.Error("email send failed",
				zap.String("to", msg.To),
				zap.Error(err),
			)
			failed++
			metrics.EmailFailures.Inc()
		} else {
			sent++
			metrics.EmailsSent.Inc()
		}

		rec.SetProgress(sent, failed)

		// ----------------------------
		// Throttle
		// ----------------------------
		if i < len(job.Recipients)-1 && job.Delay > 0 {
			time.Sleep(job.Delay)
		}
	}

	return nil
}

func (e *Engine) stopRequested(id string, rec *jobs.Record) bool {
	current, ok := e.Registry.Get(id)
	return !ok || current != rec || rec.StopRequested()
}

func (e *Engine) compose(job Job, row models.Row, attachments []models.Attachment) *models.Message {
	name := ""
	if job.NameColumn != "" {
		name = render.Value(row, job.NameColumn)
	}

	senderName := job.SenderName
	if senderName == "" {
		senderName = e.DefaultSenderName
	}
	if senderName == "" {
		senderName = DefaultSenderName
	}

	return &models.Message{
		FromName:    senderName,
		FromAddress: job.FromAddress,
		To:          recipients.Address(row, job.EmailColumn),
		Subject:     render.Name(job.Subject, name),
		HTML:        render.Body(job.Template, row, job.Variables, name),
		Attachments: attachments,
	}
}

// deliver sends the same message up to Retries+1 times, pausing
// RetryDelay between attempts. Cancelling ctx does not cut an attempt
// short; the stop is seen at the next recipient.
func (e *Engine) deliver(ctx context.Context, log *zap.Logger, tr Transport, msg *models.Message) error {
	sendCtx := context.WithoutCancel(ctx)

	operation := func() error {
		err := tr.Send(sendCtx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, email.ErrTransportClosed) {
			return backoff.Permanent(err)
		}
		return err
	}

	retries := e.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(e.RetryDelay), uint64(retries))

	notify := func(err error, wait time.Duration) {
		metrics.EmailRetries.Inc()
		log.Warn("retrying email",
			zap.String("to", msg.To),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrDelivery, msg.To, err)
	}
	return nil
}
