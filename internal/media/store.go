// Package media implements the content-addressed blob store for cover art
// and rendered audio: validation against per-type size caps, SHA-256
// checksum, UUID-named blobs, and orphan GC. Store writes the blob before
// the row; Delete removes the blob before the row.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
	"github.com/mantonx/liveset-cataloger/internal/catalogerrors"
	"gorm.io/gorm"
)

// Config carries the size caps and allowed extensions the contract names.
type Config struct {
	Root               string
	MaxCoverArtBytes   int64
	MaxAudioFileBytes  int64
	AllowedImageExts   []string
	AllowedAudioExts   []string
}

// Store is the media blob store, backed by a directory tree and the
// catalog's media_files table.
type Store struct {
	db  *gorm.DB
	cfg Config
}

func New(db *gorm.DB, cfg Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// EnsureDirectories creates the cover_art/ and audio_files/ subdirectories
// under Root.
func (s *Store) EnsureDirectories() error {
	for _, sub := range []string{catalogdb.MediaTypeCoverArt, catalogdb.MediaTypeAudioFile} {
		if err := os.MkdirAll(filepath.Join(s.cfg.Root, sub), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return nil
}

func (s *Store) subdir(mediaType string) string {
	if mediaType == catalogdb.MediaTypeCoverArt {
		return "cover_art"
	}
	return "audio_files"
}

func (s *Store) blobPath(id, ext, mediaType string) string {
	return filepath.Join(s.cfg.Root, s.subdir(mediaType), id+ext)
}

// Store validates, checksums, and writes data as a new MediaFile.
func (s *Store) Store(data []byte, originalFilename, mediaType, mimeType string) (*catalogdb.MediaFile, error) {
	ext := filepath.Ext(originalFilename)

	if err := s.validate(data, ext, mediaType); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	id := uuid.NewString()
	path := s.blobPath(id, ext, mediaType)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, catalogerrors.Media(fmt.Sprintf("write blob: %v", err))
	}

	mf := &catalogdb.MediaFile{
		ID:               id,
		OriginalFilename: originalFilename,
		FileExtension:    ext,
		MediaType:        mediaType,
		FileSizeBytes:    int64(len(data)),
		MimeType:         mimeType,
		UploadedAt:       time.Now().UTC(),
		Checksum:         hex.EncodeToString(sum[:]),
	}

	if err := s.db.Create(mf).Error; err != nil {
		// Row failed after the blob was written; remove the orphaned blob
		// so cleanup_orphans doesn't have to discover it later.
		_ = os.Remove(path)
		return nil, catalogerrors.Catalog("create media_files row", err)
	}

	return mf, nil
}

func (s *Store) validate(data []byte, ext, mediaType string) error {
	switch mediaType {
	case catalogdb.MediaTypeCoverArt:
		if int64(len(data)) > s.cfg.MaxCoverArtBytes {
			return catalogerrors.Media(fmt.Sprintf("cover art exceeds %d bytes", s.cfg.MaxCoverArtBytes))
		}
		if !extAllowed(ext, s.cfg.AllowedImageExts) {
			return catalogerrors.Media(fmt.Sprintf("extension %q not allowed for cover art", ext))
		}
	case catalogdb.MediaTypeAudioFile:
		if int64(len(data)) > s.cfg.MaxAudioFileBytes {
			return catalogerrors.Media(fmt.Sprintf("audio file exceeds %d bytes", s.cfg.MaxAudioFileBytes))
		}
		if !extAllowed(ext, s.cfg.AllowedAudioExts) {
			return catalogerrors.Media(fmt.Sprintf("extension %q not allowed for audio", ext))
		}
	default:
		return catalogerrors.Media(fmt.Sprintf("unknown media type %q", mediaType))
	}
	return nil
}

func extAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if a == ext {
			return true
		}
	}
	return false
}

// Open streams a MediaFile's bytes for the chunked download RPC. Callers
// read in 64 KiB frames; the first frame convention (metadata before
// bytes) is implemented at the RPC handler, not here.
func (s *Store) Open(id string) (*catalogdb.MediaFile, io.ReadCloser, error) {
	var mf catalogdb.MediaFile
	if err := s.db.First(&mf, "id = ?", id).Error; err != nil {
		return nil, nil, catalogerrors.Catalog("media file not found", err)
	}
	path := s.blobPath(mf.ID, mf.FileExtension, mf.MediaType)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, catalogerrors.Media(fmt.Sprintf("blob missing for %s: %v", id, err))
	}
	return &mf, f, nil
}

// Delete removes the blob then the catalog row — a stray row is
// recoverable by GC, a stray blob is not, so the blob must go first. Any
// Collection.CoverArtID or Project.AudioFileID pointing at id is nulled out
// in the same transaction as the row delete, per §8 scenario 4: a deleted
// MediaFile must never leave a dangling referrer behind.
func (s *Store) Delete(id string) error {
	var mf catalogdb.MediaFile
	if err := s.db.First(&mf, "id = ?", id).Error; err != nil {
		return catalogerrors.Catalog("media file not found", err)
	}
	path := s.blobPath(mf.ID, mf.FileExtension, mf.MediaType)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return catalogerrors.Media(fmt.Sprintf("remove blob: %v", err))
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&catalogdb.Collection{}).Where("cover_art_id = ?", id).
			Update("cover_art_id", nil).Error; err != nil {
			return fmt.Errorf("clear collection cover_art_id: %w", err)
		}
		if err := tx.Model(&catalogdb.Project{}).Where("audio_file_id = ?", id).
			Update("audio_file_id", nil).Error; err != nil {
			return fmt.Errorf("clear project audio_file_id: %w", err)
		}
		return tx.Delete(&mf).Error
	})
}

// OrphanReport is the result of CleanupOrphans.
type OrphanReport struct {
	OrphanIDs []string
	Deleted   []string
}

// CleanupOrphans enumerates media_files rows referenced by nothing
// (neither a Collection's cover_art_id nor a Project's audio_file_id) and,
// unless dryRun, deletes blob then row for each.
func (s *Store) CleanupOrphans(dryRun bool) (*OrphanReport, error) {
	var orphans []catalogdb.MediaFile
	err := s.db.Raw(`
		SELECT m.* FROM media_files m
		WHERE m.id NOT IN (SELECT cover_art_id FROM collections WHERE cover_art_id IS NOT NULL)
		  AND m.id NOT IN (SELECT audio_file_id FROM projects WHERE audio_file_id IS NOT NULL)
	`).Scan(&orphans).Error
	if err != nil {
		return nil, catalogerrors.Catalog("enumerate orphans", err)
	}

	report := &OrphanReport{}
	for _, mf := range orphans {
		report.OrphanIDs = append(report.OrphanIDs, mf.ID)
		if dryRun {
			continue
		}
		if err := s.Delete(mf.ID); err != nil {
			return report, err
		}
		report.Deleted = append(report.Deleted, mf.ID)
	}
	return report, nil
}
