package catalog

import (
	"fmt"
	"strings"

	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
	"github.com/mantonx/liveset-cataloger/internal/catalogerrors"
	"gorm.io/gorm"
)

// AttachTag adds tag to project's tag set (idempotent: gorm's association
// Append skips rows already present in the join table) and refreshes the
// project's FTS tags column so the tag: operator can find it immediately.
func (s *Store) AttachTag(projectID uint, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var p catalogdb.Project
		if err := tx.First(&p, projectID).Error; err != nil {
			return fmt.Errorf("lookup project: %w", err)
		}
		var tag catalogdb.Tag
		if err := tx.First(&tag, "id = ?", tagID).Error; err != nil {
			return fmt.Errorf("lookup tag: %w", err)
		}
		if err := tx.Model(&p).Association("Tags").Append(&tag); err != nil {
			return fmt.Errorf("attach tag: %w", err)
		}
		return s.refreshFTSTags(tx, p.ID)
	})
}

// DetachTag removes tag from project's tag set and refreshes the FTS tags
// column.
func (s *Store) DetachTag(projectID uint, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var p catalogdb.Project
		if err := tx.First(&p, projectID).Error; err != nil {
			return fmt.Errorf("lookup project: %w", err)
		}
		var tag catalogdb.Tag
		if err := tx.First(&tag, "id = ?", tagID).Error; err != nil {
			return fmt.Errorf("lookup tag: %w", err)
		}
		if err := tx.Model(&p).Association("Tags").Delete(&tag); err != nil {
			return fmt.Errorf("detach tag: %w", err)
		}
		return s.refreshFTSTags(tx, p.ID)
	})
}

// tagNamesForProject returns the names of every tag currently attached to
// projectID, space-joined the same way replaceFTSRow joins plugin and
// sample names.
func tagNamesForProject(tx *gorm.DB, projectID uint) (string, error) {
	var names []string
	err := tx.Table("tags").
		Joins("JOIN project_tags ON project_tags.tag_id = tags.id").
		Where("project_tags.project_id = ?", projectID).
		Pluck("tags.name", &names).Error
	if err != nil {
		return "", fmt.Errorf("lookup project tags: %w", err)
	}
	return strings.Join(names, " "), nil
}

// refreshFTSTags rewrites just the tags column of an existing FTS row,
// leaving the rest of the row (maintained by replaceFTSRow during upsert)
// untouched.
func (s *Store) refreshFTSTags(tx *gorm.DB, projectID uint) error {
	tagsText, err := tagNamesForProject(tx, projectID)
	if err != nil {
		return err
	}
	if err := tx.Exec(`UPDATE projects_fts SET tags = ? WHERE project_id = ?`, tagsText, projectID).Error; err != nil {
		return catalogerrors.Catalog("update fts tags", err)
	}
	return nil
}
