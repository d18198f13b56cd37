// Package recipients loads spreadsheet rows and narrows them to the
// rows that can actually be mailed.
package recipients

import (
	"fmt"
	"path/filepath"
	"strings"

	"CampaignMailer/internal/models"
)

// Load picks a loader by file extension. Anything that is not CSV is
// treated as a workbook.
func Load(path string) ([]models.Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return LoadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported spreadsheet type %q", filepath.Ext(path))
	}
}

// Resolve keeps the rows whose emailColumn holds a text value containing
// both '@' and '.'. Order is preserved; the result may be empty.
func Resolve(rows []models.Row, emailColumn string) []models.Row {
	valid := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		if Address(row, emailColumn) == "" {
			continue
		}
		valid = append(valid, row)
	}
	return valid
}

// Address returns the row's plausible email address, or "" if the
// column is missing, not text, or lacks '@' or '.'.
func Address(row models.Row, emailColumn string) string {
	email, ok := row[emailColumn].(string)
	if !ok {
		return ""
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return ""
	}
	return email
}

// Cap trims rows to at most limit entries and reports how many were
// dropped. A non-positive limit disables the cap.
func Cap(rows []models.Row, limit int) ([]models.Row, int) {
	if limit <= 0 || len(rows) <= limit {
		return rows, 0
	}
	return rows[:limit], len(rows) - limit
}
