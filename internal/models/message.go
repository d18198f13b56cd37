package models

// Row is one spreadsheet row keyed by column header. Values are strings
// when read from a file and may be numbers when supplied as JSON.
type Row map[string]any

// Variable binds a template placeholder to the row column that fills it.
type Variable struct {
	Placeholder string `json:"placeholder"`
	Column      string `json:"column"`
}

// Attachment is an inline image resolved from a cid: reference.
type Attachment struct {
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	ContentID string `json:"cid"`
}

// Message is a fully rendered email ready for the transport.
type Message struct {
	FromName    string
	FromAddress string
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}
