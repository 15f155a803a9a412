// Package catalog implements the upsert protocol and search over the
// catalog database: replacing a project's plugin/sample sets atomically,
// maintaining the FTS shadow row, and answering both the simple LIKE
// search and the operator-grammar FTS search.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
	"github.com/mantonx/liveset-cataloger/internal/catalogerrors"
	"github.com/mantonx/liveset-cataloger/internal/ingest"
	"gorm.io/gorm"
)

// Store wraps a *gorm.DB with the catalog's single-writer discipline from
// §5: one mutex around the connection serializes writes (UpsertProject,
// MarkInactive, Rename, tag attach/detach) so the scan orchestrator's
// worker pool — which calls UpsertProject concurrently, one goroutine per
// in-flight file — never races two transactions against the same handle.
// Reads (Search, HashUnchanged) do not take the mutex.
type Store struct {
	DB          *gorm.DB
	mu          sync.Mutex
	pluginCache map[string]uint // dev_identifier -> plugins.id, cleared per scan batch
}

// NewStore wraps db. Call ResetPluginCache at the start of each scan batch.
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db, pluginCache: make(map[string]uint)}
}

// ResetPluginCache drops the per-batch plugin lookup cache described in
// DESIGN.md (keeps one insert-or-find query per distinct plugin per batch
// instead of per reference).
func (s *Store) ResetPluginCache() {
	s.pluginCache = make(map[string]uint)
}

// UpsertProjectInput is everything the upsert protocol needs about a
// single scanned file.
type UpsertProjectInput struct {
	Path       string
	Hash       string
	Name       string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Project    *ingest.FinalizedProject
	Version    ingest.Version
}

// UpsertProject implements §4.7's six-step protocol inside one
// transaction: find-or-create by path, skip if hash unchanged, replace
// plugin/sample joins, replace the FTS row.
func (s *Store) UpsertProject(in UpsertProjectInput) (*catalogdb.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *catalogdb.Project

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing catalogdb.Project
		err := tx.Where("file_path = ?", in.Path).First(&existing).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			existing = catalogdb.Project{FilePath: in.Path}
		case err != nil:
			return fmt.Errorf("lookup project: %w", err)
		default:
			if existing.FileHash == in.Hash && !existing.LastParsedAt.IsZero() {
				result = &existing
				return nil // unchanged, steps 2-5 skipped
			}
		}

		existing.FileHash = in.Hash
		existing.Name = in.Name
		existing.CreatedAt = in.CreatedAt
		existing.ModifiedAt = in.ModifiedAt
		existing.LastParsedAt = time.Now().UTC()
		existing.Tempo = in.Project.Tempo
		existing.TimeSigNum = in.Project.TimeSig.Numerator
		existing.TimeSigDenom = in.Project.TimeSig.Denominator
		existing.VersionMajor = in.Version.Major
		existing.VersionMinor = in.Version.Minor
		existing.VersionPatch = in.Version.Patch
		existing.VersionBeta = in.Version.Beta
		existing.IsActive = true
		if in.Project.KeyTonic != "" {
			existing.KeyTonic = &in.Project.KeyTonic
			existing.KeyScale = &in.Project.KeyScale
		}
		existing.FurthestBar = in.Project.FurthestBar

		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("save project: %w", err)
		}

		if err := tx.Model(&existing).Association("Plugins").Clear(); err != nil {
			return fmt.Errorf("clear plugins: %w", err)
		}
		if err := tx.Model(&existing).Association("Samples").Clear(); err != nil {
			return fmt.Errorf("clear samples: %w", err)
		}

		plugins, err := s.findOrCreatePlugins(tx, in.Project.Plugins)
		if err != nil {
			return err
		}
		if len(plugins) > 0 {
			if err := tx.Model(&existing).Association("Plugins").Append(plugins); err != nil {
				return fmt.Errorf("attach plugins: %w", err)
			}
		}

		samples, err := s.findOrCreateSamples(tx, in.Project.Samples)
		if err != nil {
			return err
		}
		if len(samples) > 0 {
			if err := tx.Model(&existing).Association("Samples").Append(samples); err != nil {
				return fmt.Errorf("attach samples: %w", err)
			}
		}

		if err := s.replaceFTSRow(tx, &existing, plugins, samples); err != nil {
			return err
		}

		result = &existing
		return nil
	})
	if err != nil {
		return nil, catalogerrors.Catalog("upsert project failed", err)
	}
	return result, nil
}

func (s *Store) findOrCreatePlugins(tx *gorm.DB, infos []ingest.FinalizedPlugin) ([]catalogdb.Plugin, error) {
	result := make([]catalogdb.Plugin, 0, len(infos))
	for _, info := range infos {
		var p catalogdb.Plugin
		if id, ok := s.pluginCache[info.DeviceID]; ok {
			p.ID = id
			p.DevIdentifier = info.DeviceID
			p.Name = info.Name
		} else {
			err := tx.Where("dev_identifier = ?", info.DeviceID).First(&p).Error
			if err == gorm.ErrRecordNotFound {
				p = catalogdb.Plugin{DevIdentifier: info.DeviceID}
			} else if err != nil {
				return nil, fmt.Errorf("lookup plugin %s: %w", info.DeviceID, err)
			}
			p.Name = info.Name
			p.Format = string(info.Format)
			p.Installed = info.Installed
			if info.Vendor != "" {
				p.Vendor = &info.Vendor
			}
			if info.Version != "" {
				p.Version = &info.Version
			}
			if err := tx.Save(&p).Error; err != nil {
				return nil, fmt.Errorf("save plugin %s: %w", info.DeviceID, err)
			}
			s.pluginCache[info.DeviceID] = p.ID
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) findOrCreateSamples(tx *gorm.DB, infos []ingest.FinalizedSample) ([]catalogdb.Sample, error) {
	result := make([]catalogdb.Sample, 0, len(infos))
	for _, info := range infos {
		var sample catalogdb.Sample
		err := tx.Where("name = ? AND path = ?", info.Name, info.Path).First(&sample).Error
		if err == gorm.ErrRecordNotFound {
			sample = catalogdb.Sample{Name: info.Name, Path: info.Path}
			if err := tx.Create(&sample).Error; err != nil {
				return nil, fmt.Errorf("create sample: %w", err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("lookup sample: %w", err)
		}
		result = append(result, sample)
	}
	return result, nil
}

func (s *Store) replaceFTSRow(tx *gorm.DB, p *catalogdb.Project, plugins []catalogdb.Plugin, samples []catalogdb.Sample) error {
	pluginNames := make([]string, len(plugins))
	for i, pl := range plugins {
		pluginNames[i] = pl.Name
	}
	sampleNames := make([]string, len(samples))
	for i, sm := range samples {
		sampleNames[i] = sm.Name
	}

	keySig := ""
	if p.KeyTonic != nil && p.KeyScale != nil {
		keySig = *p.KeyTonic + " " + *p.KeyScale
	}

	durationText := ""
	if p.DurationS != nil {
		durationText = strconv.FormatFloat(*p.DurationS, 'f', 1, 64)
	}

	// Tags persist across reparses (only plugins/samples are replaced by
	// this upsert), so the FTS row picks up whatever's already attached
	// rather than clearing it.
	tagsText, err := tagNamesForProject(tx, p.ID)
	if err != nil {
		return err
	}

	if err := tx.Exec(`DELETE FROM projects_fts WHERE project_id = ?`, p.ID).Error; err != nil {
		return fmt.Errorf("clear fts row: %w", err)
	}
	return tx.Exec(`INSERT INTO projects_fts (
		project_id, name, path, plugins, samples, tags, notes,
		created_at_text, modified_at_text, tempo_text,
		key_signature_text, time_signature_text, version_text, duration_text
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.FilePath,
		strings.Join(pluginNames, " "), strings.Join(sampleNames, " "), tagsText, p.Notes,
		p.CreatedAt.Format(time.RFC3339), p.ModifiedAt.Format(time.RFC3339),
		strconv.FormatFloat(p.Tempo, 'f', 1, 64),
		keySig,
		fmt.Sprintf("%d/%d", p.TimeSigNum, p.TimeSigDenom),
		fmt.Sprintf("%d.%d.%d", p.VersionMajor, p.VersionMinor, p.VersionPatch),
		durationText,
	).Error
}

// MarkInactive implements the watcher's Deleted event: the project row is
// soft-deleted, never removed, so tags/notes/collection membership survive.
func (s *Store) MarkInactive(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DB.Model(&catalogdb.Project{}).Where("file_path = ?", path).
		Update("is_active", false).Error
}

// Rename implements the watcher's Renamed event: update path in place,
// keeping id stable.
func (s *Store) Rename(fromPath, toPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&catalogdb.Project{}).Where("file_path = ?", fromPath).
			Updates(map[string]interface{}{"file_path": toPath, "is_active": true}).Error; err != nil {
			return err
		}
		return tx.Exec(`UPDATE projects_fts SET path = ? WHERE project_id = (SELECT id FROM projects WHERE file_path = ?)`, toPath, toPath).Error
	})
}
