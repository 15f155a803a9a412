package catalog

import "github.com/mantonx/liveset-cataloger/internal/catalogdb"

// HashUnchanged reports whether path is already catalogued with hash,
// letting the orchestrator's Preprocessing phase skip reparsing.
func (s *Store) HashUnchanged(path, hash string) bool {
	var p catalogdb.Project
	err := s.DB.Select("file_hash").Where("file_path = ? AND is_active = ?", path, true).First(&p).Error
	if err != nil {
		return false
	}
	return p.FileHash == hash
}
