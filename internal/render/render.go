// Package render personalizes a campaign template for one recipient.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"CampaignMailer/internal/models"
)

var nameToken = regexp.MustCompile(`(?i)\{\{name\}\}`)

// Body substitutes every mapped placeholder whose source column has a
// non-empty value in row, then replaces {{name}} in any letter case with
// recipientName. Unmatched placeholders stay as they are.
func Body(template string, row models.Row, variables []models.Variable, recipientName string) string {
	out := template
	for _, v := range variables {
		if v.Placeholder == "" || v.Column == "" {
			continue
		}
		value := Value(row, v.Column)
		if value == "" {
			continue
		}
		out = strings.ReplaceAll(out, "{{"+v.Placeholder+"}}", value)
	}
	return Name(out, recipientName)
}

// Name replaces {{name}} in any letter case. It is applied to the
// subject line on its own.
func Name(text, recipientName string) string {
	return nameToken.ReplaceAllLiteralString(text, recipientName)
}

// Value is the string form of a row cell, or "" when the cell is absent.
func Value(row models.Row, column string) string {
	v, ok := row[column]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers arrive as float64; whole numbers print without a
		// trailing ".0".
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	}
	return fmt.Sprint(v)
}
