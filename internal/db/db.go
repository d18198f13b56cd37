package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(conn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, err
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id                   BIGSERIAL PRIMARY KEY,
	campaign_name        TEXT NOT NULL DEFAULT '',
	excel_path           TEXT NOT NULL DEFAULT '',
	html_path            TEXT,
	template             TEXT NOT NULL DEFAULT '',
	email_column         TEXT NOT NULL DEFAULT '',
	name_column          TEXT NOT NULL DEFAULT '',
	subject_line         TEXT NOT NULL DEFAULT '',
	sender_name          TEXT NOT NULL DEFAULT '',
	variables            JSONB NOT NULL DEFAULT '[]',
	smtp_server          TEXT NOT NULL DEFAULT '',
	smtp_port            INTEGER NOT NULL DEFAULT 587,
	email_user           TEXT NOT NULL DEFAULT '',
	email_pass           TEXT NOT NULL DEFAULT '',
	delay_between_emails INTEGER NOT NULL DEFAULT 2000,
	status               TEXT NOT NULL DEFAULT 'draft',
	is_scheduled         BOOLEAN NOT NULL DEFAULT FALSE,
	schedule_pattern     TEXT,
	timezone             TEXT,
	last_executed        TIMESTAMPTZ,
	execution_count      INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate creates the campaigns table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

const campaignColumns = `id, campaign_name, excel_path, COALESCE(html_path, ''), template,
	email_column, name_column, subject_line, sender_name, variables,
	smtp_server, smtp_port, email_user, email_pass, delay_between_emails,
	status, is_scheduled, COALESCE(schedule_pattern, ''), COALESCE(timezone, ''),
	last_executed, execution_count, COALESCE(last_error, ''), created_at, updated_at`

func scanCampaign(row pgx.Row) (models.Campaign, error) {
	var (
		c       models.Campaign
		vars    []byte
		delayMS int64
		status  string
	)

	err := row.Scan(
		&c.ID, &c.Name, &c.SpreadsheetPath, &c.TemplatePath, &c.Template,
		&c.EmailColumn, &c.NameColumn, &c.Subject, &c.SenderName, &vars,
		&c.SMTPHost, &c.SMTPPort, &c.SMTPUser, &c.SMTPPassword, &delayMS,
		&status, &c.IsScheduled, &c.SchedulePattern, &c.Timezone,
		&c.LastExecuted, &c.ExecutionCount, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return models.Campaign{}, err
	}

	c.Status = models.CampaignStatus(status)
	c.Delay = time.Duration(delayMS) * time.Millisecond
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &c.Variables); err != nil {
			return models.Campaign{}, fmt.Errorf("campaign %d variables: %w", c.ID, err)
		}
	}
	return c, nil
}

func (s *Store) InsertCampaign(ctx context.Context, c *models.Campaign) error {

	varsJSON, err := json.Marshal(c.Variables)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = models.CampaignPending
	}

	return s.Pool.QueryRow(ctx,
		`INSERT INTO campaigns
		 (campaign_name, excel_path, html_path, template, email_column, name_column,
		  subject_line, sender_name, variables, smtp_server, smtp_port, email_user,
		  email_pass, delay_between_emails, status, created_at, updated_at)
		 VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
		 RETURNING id, created_at, updated_at`,
		c.Name,
		c.SpreadsheetPath,
		c.TemplatePath,
		c.Template,
		c.EmailColumn,
		c.NameColumn,
		c.Subject,
		c.SenderName,
		varsJSON,
		c.SMTPHost,
		c.SMTPPort,
		c.SMTPUser,
		c.SMTPPassword,
		c.Delay.Milliseconds(),
		c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (s *Store) GetCampaign(ctx context.Context, id int64) (models.Campaign, error) {
	c, err := scanCampaign(s.Pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Campaign{}, fmt.Errorf("%w: %d", errs.ErrCampaignNotFound, id)
	}
	return c, err
}

// ListScheduled returns the campaigns whose timers must be re-armed at
// startup. Rows left in sending by an interrupted firing are included.
func (s *Store) ListScheduled(ctx context.Context) ([]models.Campaign, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE is_scheduled
		   AND status IN ($1, $2, $3)
		   AND schedule_pattern IS NOT NULL
		 ORDER BY id`,
		models.CampaignScheduled, models.CampaignSending, models.CampaignPaused,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCampaign(ctx context.Context, id int64) error {
	return s.exec(ctx, id, `DELETE FROM campaigns WHERE id=$1`, id)
}

func (s *Store) MarkScheduled(ctx context.Context, id int64, pattern, timezone string) error {
	return s.exec(ctx, id,
		`UPDATE campaigns
		 SET is_scheduled=TRUE,
		     status=$1,
		     schedule_pattern=$2,
		     timezone=NULLIF($3,''),
		     updated_at=NOW()
		 WHERE id=$4`,
		models.CampaignScheduled, pattern, timezone, id,
	)
}

// MarkUnscheduled reverts a campaign to draft. A missing row is not an
// error, so unscheduling stays idempotent.
func (s *Store) MarkUnscheduled(ctx context.Context, id int64) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE campaigns
		 SET is_scheduled=FALSE,
		     status=$1,
		     schedule_pattern=NULL,
		     updated_at=NOW()
		 WHERE id=$2`,
		models.CampaignDraft, id,
	)
	return err
}

func (s *Store) SetStatus(ctx context.Context, id int64, status models.CampaignStatus) error {
	return s.exec(ctx, id,
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`,
		status, id,
	)
}

// MarkSending starts a firing. It reports ErrCampaignNotFound when the
// campaign is gone or no longer scheduled.
func (s *Store) MarkSending(ctx context.Context, id int64, at time.Time) error {
	return s.exec(ctx, id,
		`UPDATE campaigns
		 SET status=$1,
		     last_executed=$2,
		     updated_at=NOW()
		 WHERE id=$3 AND is_scheduled`,
		models.CampaignSending, at, id,
	)
}

// CompleteExecution ends a firing. It only applies to a campaign that is
// still scheduled and sending; a campaign unscheduled or paused in the
// meantime keeps its state.
func (s *Store) CompleteExecution(ctx context.Context, id int64) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE campaigns
		 SET status=$1,
		     execution_count=execution_count+1,
		     last_error=NULL,
		     updated_at=NOW()
		 WHERE id=$2 AND is_scheduled AND status=$3`,
		models.CampaignScheduled, id, models.CampaignSending,
	)
	return err
}

// RecordFailure ends a firing with an error, under the same conditions
// as CompleteExecution.
func (s *Store) RecordFailure(ctx context.Context, id int64, errorMsg string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE campaigns
		 SET status=$1,
		     last_error=$2,
		     updated_at=NOW()
		 WHERE id=$3 AND is_scheduled AND status=$4`,
		models.CampaignScheduled, errorMsg, id, models.CampaignSending,
	)
	return err
}

func (s *Store) exec(ctx context.Context, id int64, sql string, args ...any) error {
	tag, err := s.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", errs.ErrCampaignNotFound, id)
	}
	return nil
}
