package ingest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mantonx/liveset-cataloger/internal/catalogerrors"
)

// DBPluginRow is a row read from the external, read-only plugin catalog.
type DBPluginRow struct {
	Name      string
	Vendor    string
	Version   string
	SDKVersion string
	Flags     int
	ScanState int
	Enabled   bool
}

// PluginDBReader opens the most recently modified *.db file under dir (the
// external scanning tool overwrites rather than rotates) and answers
// device-identifier lookups against it.
type PluginDBReader struct {
	db   *sql.DB
	path string
}

// OpenPluginDB discovers and opens the plugin database read-only. A
// missing or unreadable directory is not fatal to the caller: it should
// proceed with a nil reader and mark every plugin not-installed.
func OpenPluginDB(dir string) (*PluginDBReader, error) {
	path, err := findMostRecentDB(dir)
	if err != nil {
		return nil, catalogerrors.PluginDB("could not locate plugin database", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&immutable=1", path))
	if err != nil {
		return nil, catalogerrors.PluginDB("could not open plugin database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, catalogerrors.PluginDB("could not ping plugin database", err)
	}
	return &PluginDBReader{db: db, path: path}, nil
}

func findMostRecentDB(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestMod int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mt := info.ModTime().Unix(); best == "" || mt > bestMod {
			best = filepath.Join(dir, e.Name())
			bestMod = mt
		}
	}
	if best == "" {
		return "", fmt.Errorf("no .db files found in %s", dir)
	}
	return best, nil
}

// Lookup returns the plugin row for devID, or ok=false if not installed.
func (r *PluginDBReader) Lookup(devID string) (DBPluginRow, bool) {
	if r == nil || r.db == nil {
		return DBPluginRow{}, false
	}
	var row DBPluginRow
	err := r.db.QueryRow(
		`SELECT name, vendor, version, sdk_version, flags, scanstate, enabled
		 FROM plugins WHERE dev_identifier = ?`, devID,
	).Scan(&row.Name, &row.Vendor, &row.Version, &row.SDKVersion, &row.Flags, &row.ScanState, &row.Enabled)
	if err != nil {
		return DBPluginRow{}, false
	}
	return row, true
}

// Close releases the underlying connection.
func (r *PluginDBReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
