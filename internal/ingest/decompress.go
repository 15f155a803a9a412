// Package ingest implements the project ingestion pipeline: decompression,
// version detection, the streaming XML state machine, sample path
// decoding, plugin database lookups, and result finalization.
package ingest

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mantonx/liveset-cataloger/internal/catalogerrors"
)

// ProjectExtension is the file extension this pipeline accepts.
const ProjectExtension = ".als"

// backupFilePattern matches names like "Song [2023-11-02 143059].als",
// which are excluded from scans.
var backupFilePattern = regexp.MustCompile(`\[\d{4}-\d{2}-\d{2} \d{6}\]`)

// IsBackupFile reports whether filename carries a bracketed backup
// timestamp and should be skipped during discovery.
func IsBackupFile(filename string) bool {
	return backupFilePattern.MatchString(filename)
}

// Decompress reads path, validates its extension, and gzip-inflates it
// fully into memory. The whole-file buffer (not a streaming reader) is
// required because the XML state machine reports byte offsets for
// diagnostics and needs random access to compute line numbers.
func Decompress(path string) ([]byte, error) {
	if filepath.Ext(path) != ProjectExtension {
		return nil, catalogerrors.Format(path, fmt.Sprintf("unsupported extension %q", filepath.Ext(path)), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, catalogerrors.Format(path, "file not found", err)
		}
		return nil, catalogerrors.Format(path, "open failed", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, catalogerrors.Format(path, "gzip decompression failed", err)
	}
	defer gz.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gz); err != nil {
		return nil, catalogerrors.Format(path, "gzip decompression failed", err)
	}
	return buf.Bytes(), nil
}
