// Package assets resolves cid: image references in a template to files
// previously uploaded to the images directory.
package assets

import (
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"CampaignMailer/internal/models"
)

// Extensions are probed in this order when a reference has no file of
// the same bare name.
var Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

var cidRef = regexp.MustCompile(`(?i)src=["']cid:([^"']+)["']`)

// ExtractReferences returns the distinct cid identifiers used as image
// sources, in order of first appearance.
func ExtractReferences(template string) []string {
	matches := cidRef.FindAllStringSubmatch(template, -1)

	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Resolve maps each identifier to a file in dir. Unresolvable identifiers
// are logged and skipped; the message still goes out with that image
// broken.
func Resolve(ids []string, dir string, logger *zap.Logger) []models.Attachment {
	attachments := make([]models.Attachment, 0, len(ids))
	for _, id := range ids {
		path, ok := find(dir, id)
		if !ok {
			logger.Warn("image not found for cid",
				zap.String("cid", id),
				zap.String("dir", dir),
			)
			continue
		}
		attachments = append(attachments, models.Attachment{
			Filename:  filepath.Base(path),
			Path:      path,
			ContentID: id,
		})
	}
	return attachments
}

// ForTemplate extracts and resolves in one pass. Call it once per job.
func ForTemplate(template, dir string, logger *zap.Logger) []models.Attachment {
	return Resolve(ExtractReferences(template), dir, logger)
}

func find(dir, id string) (string, bool) {
	// A reference that names a path is never allowed to leave dir.
	if filepath.Base(id) != id {
		return "", false
	}

	for _, ext := range Extensions {
		if p := filepath.Join(dir, id+ext); isFile(p) {
			return p, true
		}
		if p := filepath.Join(dir, id); isFile(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
