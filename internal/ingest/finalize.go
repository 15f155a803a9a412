package ingest

import (
	"fmt"
	"path/filepath"

	"github.com/mantonx/liveset-cataloger/internal/catalogerrors"
)

// FinalizedPlugin is a plugin reference resolved against the Plugin DB.
type FinalizedPlugin struct {
	DeviceID   string
	Name       string
	Format     PluginFormat
	Installed  bool
	Vendor     string
	Version    string
	SDKVersion string
	Flags      int
	ScanState  int
	Enabled    bool
}

// FinalizedSample is a sample reference with its filename split out.
type FinalizedSample struct {
	Name string
	Path string
}

// FinalizedProject is the structured project record produced after
// validation and Plugin DB reconciliation; it is what the catalog's
// upsert protocol consumes.
type FinalizedProject struct {
	Tempo       float64
	TimeSig     TimeSignature
	KeyTonic    string // "" if Empty/unknown
	KeyScale    string
	FurthestBar *float64
	Plugins     []FinalizedPlugin
	Samples     []FinalizedSample
	Warnings    []string
}

// Finalize validates the raw parse result and reconciles plugins against
// the Plugin DB. pluginDB may be nil (unavailable); every plugin is then
// marked not-installed rather than failing the file.
func Finalize(res *ParseResult, version Version, pluginDB *PluginDBReader, path string) (*FinalizedProject, error) {
	if !res.HasTempo {
		return nil, catalogerrors.Content(path, "no valid tempo found")
	}
	if !res.HasTimeSig {
		return nil, catalogerrors.Content(path, "no valid time signature found")
	}

	fp := &FinalizedProject{
		Tempo:    res.Tempo,
		TimeSig:  res.TimeSig,
		Warnings: res.Warnings,
	}

	// Key signature parsing is disabled below major 11 (see parser.go);
	// the finalizer just surfaces whatever the parser captured.
	if version.Major >= 11 {
		fp.KeyTonic = res.KeyTonic
		fp.KeyScale = res.KeyScale
	}

	if res.HasDuration {
		fb := res.FurthestBar
		fp.FurthestBar = &fb
	}

	for _, path := range res.SamplePaths {
		fp.Samples = append(fp.Samples, FinalizedSample{
			Name: filepath.Base(path),
			Path: path,
		})
	}

	for _, info := range res.Plugins {
		fplugin := FinalizedPlugin{
			DeviceID: info.DeviceID,
			Name:     info.Name,
			Format:   info.Format,
		}
		if row, ok := pluginDB.Lookup(info.DeviceID); ok {
			fplugin.Installed = true
			fplugin.Vendor = row.Vendor
			fplugin.Version = row.Version
			fplugin.SDKVersion = row.SDKVersion
			fplugin.Flags = row.Flags
			fplugin.ScanState = row.ScanState
			fplugin.Enabled = row.Enabled
		}
		fp.Plugins = append(fp.Plugins, fplugin)
	}

	return fp, nil
}

// ValidateTempo is exposed standalone for the boundary tests named in the
// testable-properties section (9.999 reject, 10.0 accept, etc).
func ValidateTempo(t float64) error {
	if t < 10 || t > 999 {
		return fmt.Errorf("tempo %.3f outside [10,999]", t)
	}
	return nil
}
