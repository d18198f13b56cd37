package recipients

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"CampaignMailer/internal/models"
)

// LoadXLSX reads the first sheet of a workbook. The first row is the
// header; blank rows are skipped.
func LoadXLSX(path string) ([]models.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, errors.New("sheet header row is missing")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]models.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := toRow(headers, record)
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}
