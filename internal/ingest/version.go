package ingest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/mantonx/liveset-cataloger/internal/catalogerrors"
)

// Version is the detected (major, minor, patch, beta) tuple of a project
// file, read from the root element's MinorVersion/SchemaChangeCount
// attributes. Several parser features branch on Major.
type Version struct {
	Major int
	Minor int
	Patch int
	Beta  bool
}

const (
	minSupportedMajor = 9
	maxSupportedMajor = 12
)

// DetectVersion scans xmlBytes for the root element and parses its version
// attributes without decoding the rest of the document.
func DetectVersion(xmlBytes []byte, path string) (Version, error) {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	for {
		tok, err := dec.Token()
		if err != nil {
			return Version{}, catalogerrors.Format(path, "could not locate root element", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var minorVersion, schemaChangeCount string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "MinorVersion":
				minorVersion = attr.Value
			case "SchemaChangeCount":
				schemaChangeCount = attr.Value
			}
		}

		if minorVersion == "" {
			return Version{}, catalogerrors.Unsupported(path, "missing MinorVersion attribute")
		}
		v, err := parseMinorVersion(minorVersion)
		if err != nil {
			return Version{}, catalogerrors.Unsupported(path, fmt.Sprintf("invalid MinorVersion %q: %v", minorVersion, err))
		}
		v.Beta = schemaChangeCount == "beta"

		if v.Major < minSupportedMajor || v.Major > maxSupportedMajor {
			return Version{}, catalogerrors.Unsupported(path, fmt.Sprintf("unsupported major version %d", v.Major))
		}
		return v, nil
	}
}

// parseMinorVersion parses "MAJOR.MINOR_PATCH", e.g. "11.0_453".
func parseMinorVersion(s string) (Version, error) {
	majorMinor, patchPart, hasPatch := strings.Cut(s, "_")
	majorStr, minorStr, hasMinor := strings.Cut(majorMinor, ".")
	if !hasMinor {
		return Version{}, fmt.Errorf("expected MAJOR.MINOR[_PATCH]")
	}

	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return Version{}, fmt.Errorf("non-numeric major: %w", err)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return Version{}, fmt.Errorf("non-numeric minor: %w", err)
	}
	patch := 0
	if hasPatch {
		patch, err = strconv.Atoi(patchPart)
		if err != nil {
			return Version{}, fmt.Errorf("non-numeric patch: %w", err)
		}
	}
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}
