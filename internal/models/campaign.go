package models

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignPending   CampaignStatus = "pending"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
)

// Campaign is the persisted configuration a scheduled firing reads its
// send parameters from.
type Campaign struct {
	ID   int64  `json:"id"`
	Name string `json:"campaign_name"`

	SpreadsheetPath string     `json:"excel_path"`
	TemplatePath    string     `json:"html_path,omitempty"`
	Template        string     `json:"template"`
	EmailColumn     string     `json:"email_column"`
	NameColumn      string     `json:"name_column"`
	Subject         string     `json:"subject_line"`
	SenderName      string     `json:"sender_name"`
	Variables       []Variable `json:"variables"`

	SMTPHost     string        `json:"smtp_server"`
	SMTPPort     int           `json:"smtp_port"`
	SMTPUser     string        `json:"email_user"`
	SMTPPassword string        `json:"-"`
	Delay        time.Duration `json:"delay_between_emails"`

	Status          CampaignStatus `json:"status"`
	IsScheduled     bool           `json:"is_scheduled"`
	SchedulePattern string         `json:"schedule_pattern,omitempty"`
	Timezone        string         `json:"timezone,omitempty"`
	LastExecuted    *time.Time     `json:"last_executed,omitempty"`
	ExecutionCount  int            `json:"execution_count"`
	LastError       string         `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
