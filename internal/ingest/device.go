package ingest

import "strings"

// PluginFormat classifies a device identifier per the four recognized
// prefixes (§6.3). Any other prefix is not a plugin reference.
type PluginFormat string

const (
	FormatVST2Instrument PluginFormat = "vst2-instrument"
	FormatVST2AudioFX    PluginFormat = "vst2-audiofx"
	FormatVST3Instrument PluginFormat = "vst3-instrument"
	FormatVST3AudioFX    PluginFormat = "vst3-audiofx"
)

// ClassifyDeviceIdentifier maps a device identifier string to a
// PluginFormat. ok is false when devID does not carry a recognized
// plugin prefix (e.g. built-in Ableton devices), in which case it must be
// ignored by the branch-source-context capture.
func ClassifyDeviceIdentifier(devID string) (PluginFormat, bool) {
	switch {
	case strings.HasPrefix(devID, "device:vst:instr:"):
		return FormatVST2Instrument, true
	case strings.HasPrefix(devID, "device:vst:audiofx:"):
		return FormatVST2AudioFX, true
	case strings.HasPrefix(devID, "device:vst3:instr:"):
		return FormatVST3Instrument, true
	case strings.HasPrefix(devID, "device:vst3:audiofx:"):
		return FormatVST3AudioFX, true
	default:
		return "", false
	}
}
