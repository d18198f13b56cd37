// Package dispatch turns a send request into a registered, running job:
// it validates parameters, loads and filters recipients, checks the
// relay, and only then creates the job record and starts the engine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"CampaignMailer/internal/email"
	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/jobs"
	"CampaignMailer/internal/metrics"
	"CampaignMailer/internal/models"
	"CampaignMailer/internal/recipients"
	"CampaignMailer/internal/worker"
)

// ErrNoRecipients is returned when filtering leaves nobody to mail.
var ErrNoRecipients = fmt.Errorf("%w: no valid email addresses found", errs.ErrValidation)

// Transport is a delivery transport that can also self-test.
type Transport interface {
	worker.Transport
	Verify(ctx context.Context) error
}

// Opener builds a transport for one job.
type Opener func(cfg email.Config) Transport

// OpenSMTP is the production Opener.
func OpenSMTP(cfg email.Config) Transport {
	return email.Open(cfg)
}

type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Request carries one send's parameters. Rows, when set, are used
// instead of reading SpreadsheetPath. Template wins over TemplatePath.
type Request struct {
	SpreadsheetPath string
	Rows            []models.Row
	TemplatePath    string
	Template        string
	EmailColumn     string
	NameColumn      string
	Subject         string
	SenderName      string
	Variables       []models.Variable
	SMTP            SMTP
	Delay           time.Duration
}

// Started is returned to the caller as soon as the job is registered.
type Started struct {
	JobID   string `json:"jobId"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Skipped int    `json:"skipped"`
}

type Options struct {
	MaxRecipients int
	DefaultDelay  time.Duration

	// Pool supplies RateLimit, MaxConnections and MaxMessages for every
	// transport opened.
	Pool email.Config
	Open Opener
}

type Dispatcher struct {
	base     context.Context
	registry *jobs.Registry
	engine   *worker.Engine
	opts     Options
	log      *zap.Logger
}

// New returns a Dispatcher whose jobs live as long as base. Cancelling
// base asks every job to stop at its next recipient boundary.
func New(base context.Context, registry *jobs.Registry, engine *worker.Engine, opts Options, log *zap.Logger) *Dispatcher {
	if opts.Open == nil {
		opts.Open = OpenSMTP
	}
	return &Dispatcher{
		base:     base,
		registry: registry,
		engine:   engine,
		opts:     opts,
		log:      log,
	}
}

type prepared struct {
	rows      []models.Row
	skipped   int
	template  string
	transport Transport
}

// Start validates req, verifies the relay and launches the job in the
// background. Nothing is registered if any of that fails.
func (d *Dispatcher) Start(ctx context.Context, req Request) (Started, error) {
	p, err := d.prepare(ctx, req)
	if err != nil {
		return Started{}, err
	}

	id := uuid.NewString()
	rec, err := d.registry.Create(d.base, jobs.Spec{ID: id, Total: len(p.rows)})
	if err != nil {
		p.transport.Close()
		return Started{}, err
	}
	metrics.JobsStarted.Inc()

	d.engine.Start(d.base, rec, d.job(id, req, p), p.transport)

	d.log.Info("send job registered",
		zap.String("job_id", id),
		zap.Int("total", len(p.rows)),
		zap.Int("skipped", p.skipped),
	)

	return Started{
		JobID:   id,
		Total:   len(p.rows),
		Limit:   d.opts.MaxRecipients,
		Skipped: p.skipped,
	}, nil
}

// RunCampaign runs one firing of a campaign to the end under jobID and
// returns the job's final status.
func (d *Dispatcher) RunCampaign(ctx context.Context, c models.Campaign, jobID string) (models.JobStatus, error) {
	req := FromCampaign(c)

	p, err := d.prepare(ctx, req)
	if err != nil {
		return models.JobStatus{}, err
	}

	rec, err := d.registry.Create(d.base, jobs.Spec{
		ID:         jobID,
		Total:      len(p.rows),
		CampaignID: c.ID,
		Scheduled:  true,
	})
	if err != nil {
		p.transport.Close()
		return models.JobStatus{}, err
	}
	metrics.JobsStarted.Inc()

	err = d.engine.Run(d.base, rec, d.job(jobID, req, p), p.transport)
	return rec.Snapshot(), err
}

// TestConnection dials and authenticates against the relay.
func (d *Dispatcher) TestConnection(ctx context.Context, s SMTP) error {
	if s.Host == "" || s.User == "" || s.Password == "" {
		return fmt.Errorf("%w: smtp server, user and password are required", errs.ErrValidation)
	}
	tr := d.opts.Open(d.transportConfig(s, d.opts.DefaultDelay))
	defer tr.Close()
	return tr.Verify(ctx)
}

func (d *Dispatcher) Stop(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("%w: job id is required", errs.ErrValidation)
	}
	return d.registry.Stop(jobID)
}

func (d *Dispatcher) Status(jobID string) (models.JobStatus, error) {
	return d.registry.Status(jobID)
}

func (d *Dispatcher) Jobs() []models.JobStatus {
	return d.registry.List()
}

// Cleanup reclaims finished jobs older than retention.
func (d *Dispatcher) Cleanup(retention time.Duration) int {
	return d.registry.Sweep(retention)
}

// Validate checks that req names everything a send needs.
func Validate(req Request) error {
	if req.EmailColumn == "" || req.SMTP.Host == "" || req.SMTP.User == "" ||
		req.SMTP.Password == "" || req.Subject == "" {
		return fmt.Errorf("%w: missing required parameters", errs.ErrValidation)
	}
	if (req.SpreadsheetPath == "" && req.Rows == nil) ||
		(req.TemplatePath == "" && strings.TrimSpace(req.Template) == "") {
		return fmt.Errorf("%w: missing spreadsheet or html template", errs.ErrValidation)
	}
	return nil
}

func (d *Dispatcher) prepare(ctx context.Context, req Request) (*prepared, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	// ----------------------------
	// Template
	// ----------------------------
	template, err := loadTemplate(req)
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Recipients
	// ----------------------------
	rows := req.Rows
	if rows == nil {
		rows, err = recipients.Load(req.SpreadsheetPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading spreadsheet: %w", errs.ErrValidation, err)
		}
	}

	valid := recipients.Resolve(rows, req.EmailColumn)
	if len(valid) == 0 {
		return nil, ErrNoRecipients
	}
	capped, skipped := recipients.Cap(valid, d.opts.MaxRecipients)

	// ----------------------------
	// Transport pre-flight
	// ----------------------------
	delay := req.Delay
	if delay <= 0 {
		delay = d.opts.DefaultDelay
	}
	tr := d.opts.Open(d.transportConfig(req.SMTP, delay))
	if err := tr.Verify(ctx); err != nil {
		tr.Close()
		if !errors.Is(err, errs.ErrTransport) {
			err = fmt.Errorf("%w: %w", errs.ErrTransport, err)
		}
		return nil, err
	}

	return &prepared{
		rows:      capped,
		skipped:   skipped,
		template:  template,
		transport: tr,
	}, nil
}

func (d *Dispatcher) job(id string, req Request, p *prepared) worker.Job {
	delay := req.Delay
	if delay <= 0 {
		delay = d.opts.DefaultDelay
	}
	return worker.Job{
		ID:          id,
		Recipients:  p.rows,
		EmailColumn: req.EmailColumn,
		NameColumn:  req.NameColumn,
		Subject:     req.Subject,
		SenderName:  req.SenderName,
		FromAddress: req.SMTP.User,
		Template:    p.template,
		Variables:   req.Variables,
		Delay:       delay,
	}
}

func (d *Dispatcher) transportConfig(s SMTP, delay time.Duration) email.Config {
	cfg := d.opts.Pool
	cfg.Host = s.Host
	cfg.Port = s.Port
	cfg.Username = s.User
	cfg.Password = s.Password
	cfg.Delay = delay
	return cfg
}

func loadTemplate(req Request) (string, error) {
	if strings.TrimSpace(req.Template) != "" {
		return req.Template, nil
	}
	b, err := os.ReadFile(req.TemplatePath)
	if err != nil {
		return "", fmt.Errorf("%w: template not found: %w", errs.ErrValidation, err)
	}
	return string(b), nil
}

// FromCampaign maps a stored campaign onto a send request.
func FromCampaign(c models.Campaign) Request {
	return Request{
		SpreadsheetPath: c.SpreadsheetPath,
		TemplatePath:    c.TemplatePath,
		Template:        c.Template,
		EmailColumn:     c.EmailColumn,
		NameColumn:      c.NameColumn,
		Subject:         c.Subject,
		SenderName:      c.SenderName,
		Variables:       c.Variables,
		SMTP: SMTP{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			User:     c.SMTPUser,
			Password: c.SMTPPassword,
		},
		Delay: c.Delay,
	}
}
