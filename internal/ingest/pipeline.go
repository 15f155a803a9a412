package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// FileHash computes the content hash used for Project identity
// (file_hash, file_path). Hashing the compressed bytes directly (not the
// decompressed XML) means a touch-only re-save with identical content
// still hashes the same, and avoids decompressing twice.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IngestFile runs the full pipeline: decompress, detect version, parse,
// finalize. pluginDB may be nil.
func IngestFile(path string, pluginDB *PluginDBReader) (*FinalizedProject, Version, error) {
	xmlBytes, err := Decompress(path)
	if err != nil {
		return nil, Version{}, err
	}

	version, err := DetectVersion(xmlBytes, path)
	if err != nil {
		return nil, Version{}, err
	}

	raw, err := Parse(xmlBytes, version)
	if err != nil {
		return nil, version, err
	}

	finalized, err := Finalize(raw, version, pluginDB, path)
	if err != nil {
		return nil, version, err
	}

	return finalized, version, nil
}
