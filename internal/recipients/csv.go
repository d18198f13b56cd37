package recipients

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"CampaignMailer/internal/models"
)

// LoadCSV reads a CSV file whose first record is the header row.
func LoadCSV(path string) ([]models.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseCSV(f)
}

// ParseCSV turns every data record into a Row keyed by the trimmed
// header names. Empty cells and unnamed columns are left out of the row.
func ParseCSV(r io.Reader) ([]models.Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv header row is missing")
	}
	if err != nil {
		return nil, err
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.TrimSpace(h)
	}

	rows := make([]models.Row, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rows = append(rows, toRow(normalized, record))
	}

	return rows, nil
}

func toRow(headers, record []string) models.Row {
	row := make(models.Row, len(headers))
	for i, cell := range record {
		if i >= len(headers) || headers[i] == "" {
			continue
		}
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		row[headers[i]] = cell
	}
	return row
}
