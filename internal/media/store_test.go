package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := catalogdb.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	root := t.TempDir()
	s := New(db, Config{
		Root:              root,
		MaxCoverArtBytes:  1024,
		MaxAudioFileBytes: 2048,
		AllowedImageExts:  []string{".png", ".jpg"},
		AllowedAudioExts:  []string{".wav", ".mp3"},
	})
	if err := s.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	return s
}

func TestStoreAndOpenCoverArt(t *testing.T) {
	s := newTestStore(t)
	data := []byte("fake-png-bytes")

	mf, err := s.Store(data, "cover.png", catalogdb.MediaTypeCoverArt, "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if mf.FileSizeBytes != int64(len(data)) {
		t.Fatalf("size = %d", mf.FileSizeBytes)
	}

	got, rc, err := s.Open(mf.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	if got.ID != mf.ID {
		t.Fatalf("got id %q want %q", got.ID, mf.ID)
	}

	path := filepath.Join(s.cfg.Root, "cover_art", mf.ID+".png")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected blob at %s: %v", path, err)
	}
}

func TestStoreRejectsOversizedCoverArt(t *testing.T) {
	s := newTestStore(t)
	data := make([]byte, 2000)
	if _, err := s.Store(data, "big.png", catalogdb.MediaTypeCoverArt, "image/png"); err == nil {
		t.Fatal("expected rejection for oversized cover art")
	}
}

func TestStoreRejectsDisallowedExtension(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Store([]byte("x"), "cover.gif", catalogdb.MediaTypeCoverArt, "image/gif"); err == nil {
		t.Fatal("expected rejection for disallowed extension")
	}
}

func TestDeleteRemovesBlobAndRow(t *testing.T) {
	s := newTestStore(t)
	mf, err := s.Store([]byte("wav-bytes"), "kick.wav", catalogdb.MediaTypeAudioFile, "audio/wav")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := s.Delete(mf.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, _, err := s.Open(mf.ID); err == nil {
		t.Fatal("expected open to fail after delete")
	}

	path := filepath.Join(s.cfg.Root, "audio_files", mf.ID+".wav")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected blob removed, stat err = %v", err)
	}
}

func TestDeleteClearsCollectionCoverArtReference(t *testing.T) {
	s := newTestStore(t)
	mf, err := s.Store([]byte("cover"), "cover.png", catalogdb.MediaTypeCoverArt, "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	coll := catalogdb.Collection{ID: "coll-1", Name: "Faves", CoverArtID: &mf.ID}
	if err := s.db.Create(&coll).Error; err != nil {
		t.Fatalf("create collection: %v", err)
	}

	if err := s.Delete(mf.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got catalogdb.Collection
	if err := s.db.First(&got, "id = ?", "coll-1").Error; err != nil {
		t.Fatalf("reload collection: %v", err)
	}
	if got.CoverArtID != nil {
		t.Fatalf("expected cover_art_id to be NULL after delete, got %q", *got.CoverArtID)
	}

	report, err := s.CleanupOrphans(true)
	if err != nil {
		t.Fatalf("cleanup dry-run: %v", err)
	}
	if len(report.OrphanIDs) != 0 {
		t.Fatalf("expected cleanup_orphans dry-run to report 0 after delete, got %+v", report.OrphanIDs)
	}
}

func TestDeleteClearsProjectAudioFileReference(t *testing.T) {
	s := newTestStore(t)
	mf, err := s.Store([]byte("wav-bytes"), "render.wav", catalogdb.MediaTypeAudioFile, "audio/wav")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	proj := catalogdb.Project{
		FilePath: "/music/sets/a.als", FileHash: "abc", Name: "a",
		Tempo: 120, TimeSigNum: 4, TimeSigDenom: 4, IsActive: true,
		AudioFileID: &mf.ID,
	}
	if err := s.db.Create(&proj).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}

	if err := s.Delete(mf.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got catalogdb.Project
	if err := s.db.First(&got, proj.ID).Error; err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if got.AudioFileID != nil {
		t.Fatalf("expected audio_file_id to be NULL after delete, got %q", *got.AudioFileID)
	}
}

func TestCleanupOrphansDryRunDoesNotDelete(t *testing.T) {
	s := newTestStore(t)
	mf, err := s.Store([]byte("orphan"), "orphan.png", catalogdb.MediaTypeCoverArt, "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	report, err := s.CleanupOrphans(true)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(report.OrphanIDs) != 1 || report.OrphanIDs[0] != mf.ID {
		t.Fatalf("orphans = %+v", report.OrphanIDs)
	}
	if len(report.Deleted) != 0 {
		t.Fatal("expected no deletions in dry-run mode")
	}

	if _, _, err := s.Open(mf.ID); err != nil {
		t.Fatalf("expected blob to survive dry-run: %v", err)
	}
}

func TestCleanupOrphansDeletesUnreferenced(t *testing.T) {
	s := newTestStore(t)
	mf, err := s.Store([]byte("orphan"), "orphan.png", catalogdb.MediaTypeCoverArt, "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	report, err := s.CleanupOrphans(false)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(report.Deleted) != 1 || report.Deleted[0] != mf.ID {
		t.Fatalf("deleted = %+v", report.Deleted)
	}

	if _, _, err := s.Open(mf.ID); err == nil {
		t.Fatal("expected media file gone after cleanup")
	}
}

func TestCleanupOrphansSparesReferencedCoverArt(t *testing.T) {
	s := newTestStore(t)
	mf, err := s.Store([]byte("cover"), "cover.png", catalogdb.MediaTypeCoverArt, "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	coll := catalogdb.Collection{ID: "coll-1", Name: "Faves", CoverArtID: &mf.ID}
	if err := s.db.Create(&coll).Error; err != nil {
		t.Fatalf("create collection: %v", err)
	}

	report, err := s.CleanupOrphans(false)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(report.OrphanIDs) != 0 {
		t.Fatalf("expected no orphans, got %+v", report.OrphanIDs)
	}
	if _, _, err := s.Open(mf.ID); err != nil {
		t.Fatalf("expected referenced cover art to survive: %v", err)
	}
}
