package ingest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parserState enumerates the context the state machine is inside. The same
// element name carries different semantics depending on which state is on
// top of the stack.
type parserState int

const (
	stRoot parserState = iota
	stSampleRef
	stFileRef
	stData
	stSourceContext
	stValue
	stPluginDesc
	stVst3PluginInfo
	stVstPluginInfo
	stTempo
	stTempoManual
	stMidiClip
	stScaleInformation
)

type frame struct {
	state    parserState
	deviceID string // only meaningful for stPluginDesc
}

// PluginInfo is a raw plugin reference collected during parsing, keyed by
// device identifier in ParseResult.Plugins.
type PluginInfo struct {
	DeviceID string
	Name     string
	Format   PluginFormat
}

type keyPair struct {
	tonic string
	scale string
}

// ParseResult is the raw output of the XML state machine, before
// finalization (plugin DB reconciliation, required-field validation).
type ParseResult struct {
	Tempo         float64
	HasTempo      bool
	TimeSig       TimeSignature
	HasTimeSig    bool
	SamplePaths   []string
	Plugins       []PluginInfo
	KeyTonic      string // "" if no vote
	KeyScale      string // Major|Minor|Empty
	FurthestBar   float64
	HasDuration   bool
	Warnings      []string
}

var midiNoteTonics = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Parse runs the streaming state machine over xmlBytes, threading version
// so version-gated features (key signature extraction, sample path
// encoding) take the right branch.
func Parse(xmlBytes []byte, version Version) (*ParseResult, error) {
	p := &parser{
		dec:          xml.NewDecoder(bytes.NewReader(xmlBytes)),
		version:      version,
		namesSeen:    make(map[string]bool),
		keyVotes:     make(map[keyPair]int),
		keyFirstSeen: make(map[keyPair]int),
		stack:        []frame{{state: stRoot}},
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.result(), nil
}

type parser struct {
	dec     *xml.Decoder
	version Version

	stack []frame
	depth int

	dataAccum        strings.Builder
	currentSamplePath string
	samplePaths       []string
	pendingDeviceID   string
	namesSeen         map[string]bool

	tempo      float64
	hasTempo   bool
	timeSig    TimeSignature
	hasTimeSig bool

	endTimes []float64

	pendingTonic string
	pendingScale string
	keyVotes     map[keyPair]int
	keyFirstSeen map[keyPair]int
	keySeq       int

	plugins  []PluginInfo
	warnings []string
}

func (p *parser) top() parserState { return p.stack[len(p.stack)-1].state }

func (p *parser) push(f frame) { p.stack = append(p.stack, f) }

func (p *parser) pop() frame {
	f := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return f
}

func (p *parser) warn(format string, args ...interface{}) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *parser) run() error {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml token error: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			p.depth++
			p.handleStart(t)
		case xml.EndElement:
			p.handleEnd(t)
			p.depth--
		case xml.CharData:
			if p.top() == stData {
				p.dataAccum.Write(t)
			}
		}
	}
}

func attrValue(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (p *parser) handleStart(start xml.StartElement) {
	name := start.Name.Local
	cur := p.top()

	switch name {
	case "SampleRef":
		p.push(frame{state: stSampleRef})
		return

	case "FileRef":
		if cur == stSampleRef {
			p.push(frame{state: stFileRef})
		}
		return

	case "Path":
		if cur == stFileRef && p.version.Major >= 11 {
			if v, ok := attrValue(start, "Value"); ok {
				p.currentSamplePath = DecodeDirectPath(v)
			}
		}
		return

	case "Data":
		if cur == stFileRef && p.version.Major < 11 {
			p.dataAccum.Reset()
			p.push(frame{state: stData})
		}
		return

	case "SourceContext":
		p.push(frame{state: stSourceContext})
		return

	case "Value":
		if cur == stSourceContext {
			p.push(frame{state: stValue})
		}
		return

	case "BranchSourceContext":
		if cur == stValue {
			if devID, ok := p.scanBranchSourceContext(); ok {
				if _, isPlugin := ClassifyDeviceIdentifier(devID); isPlugin {
					p.pendingDeviceID = devID
				}
			}
		}
		return

	case "PluginDesc":
		if p.pendingDeviceID != "" {
			p.push(frame{state: stPluginDesc, deviceID: p.pendingDeviceID})
			p.pendingDeviceID = ""
		}
		return

	case "Vst3PluginInfo":
		if cur == stPluginDesc {
			dev := p.stack[len(p.stack)-1].deviceID
			if !p.namesSeen[dev] {
				p.push(frame{state: stVst3PluginInfo, deviceID: dev})
			}
		}
		return

	case "VstPluginInfo":
		if cur == stPluginDesc {
			dev := p.stack[len(p.stack)-1].deviceID
			if !p.namesSeen[dev] {
				p.push(frame{state: stVstPluginInfo, deviceID: dev})
			}
		}
		return

	case "Name":
		switch cur {
		case stVst3PluginInfo, stVstPluginInfo:
			p.recordPluginName(start)
		case stScaleInformation:
			if v, ok := attrValue(start, "Value"); ok {
				p.pendingScale = scaleFromName(v)
			}
		}
		return

	case "PlugName":
		if cur == stVst3PluginInfo || cur == stVstPluginInfo {
			p.recordPluginName(start)
		}
		return

	case "EnumEvent":
		if v, ok := attrValue(start, "Value"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				if ts, err := DecodeTimeSignature(n); err == nil {
					p.timeSig = ts
					p.hasTimeSig = true
				}
			}
		}
		return

	case "CurrentEnd":
		if v, ok := attrValue(start, "Value"); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				p.endTimes = append(p.endTimes, f)
			}
		}
		return

	case "Tempo":
		p.push(frame{state: stTempo})
		return

	case "Manual":
		if cur == stTempo {
			p.push(frame{state: stTempoManual})
			if v, ok := attrValue(start, "Value"); ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					if f >= 10 && f <= 999 {
						p.tempo = f
						p.hasTempo = true
					} else {
						p.warn("tempo %.3f outside [10,999], discarded", f)
					}
				}
			}
		}
		return

	case "MidiClip":
		if p.version.Major >= 11 {
			p.push(frame{state: stMidiClip})
			p.pendingTonic = ""
			p.pendingScale = ""
		}
		return

	case "ScaleInformation":
		if cur == stMidiClip {
			p.push(frame{state: stScaleInformation})
		}
		return

	case "RootNote":
		if cur == stScaleInformation {
			if v, ok := attrValue(start, "Value"); ok {
				if n, err := strconv.Atoi(v); err == nil {
					idx := ((n % 12) + 12) % 12
					p.pendingTonic = midiNoteTonics[idx]
				}
			}
		}
		return

	case "IsInKey":
		if cur == stMidiClip {
			if v, ok := attrValue(start, "Value"); ok && v == "true" {
				if p.pendingTonic != "" && p.pendingScale != "" {
					kp := keyPair{tonic: p.pendingTonic, scale: p.pendingScale}
					if _, seen := p.keyFirstSeen[kp]; !seen {
						p.keyFirstSeen[kp] = p.keySeq
						p.keySeq++
					}
					p.keyVotes[kp]++
				}
			}
		}
		return
	}
}

func (p *parser) recordPluginName(start xml.StartElement) {
	dev := p.stack[len(p.stack)-1].deviceID
	if p.namesSeen[dev] {
		return
	}
	v, ok := attrValue(start, "Value")
	if !ok || v == "" {
		return
	}
	format, _ := ClassifyDeviceIdentifier(dev)
	p.plugins = append(p.plugins, PluginInfo{DeviceID: dev, Name: v, Format: format})
	p.namesSeen[dev] = true
}

func scaleFromName(v string) string {
	switch v {
	case "Major":
		return "Major"
	case "Minor":
		return "Minor"
	default:
		return "Empty"
	}
}

func (p *parser) handleEnd(end xml.EndElement) {
	name := end.Name.Local
	cur := p.top()

	switch name {
	case "SampleRef":
		if cur == stSampleRef {
			if p.currentSamplePath != "" {
				p.samplePaths = append(p.samplePaths, p.currentSamplePath)
			}
			p.currentSamplePath = ""
			p.pendingDeviceID = ""
			p.pop()
		}
		return

	case "FileRef":
		if cur == stFileRef {
			p.pop()
		}
		return

	case "Data":
		if cur == stData {
			p.pop()
			decoded, err := DecodeLegacySamplePath(p.dataAccum.String())
			if err != nil {
				p.warn("sample path decode: %v", err)
				return
			}
			p.currentSamplePath = decoded
		}
		return

	case "SourceContext":
		if cur == stSourceContext {
			p.pop()
		}
		return

	case "Value":
		if cur == stValue {
			p.pop()
		}
		return

	case "PluginDesc":
		if cur == stPluginDesc {
			p.pop()
		}
		return

	case "Vst3PluginInfo":
		if cur == stVst3PluginInfo {
			p.pop()
		}
		return

	case "VstPluginInfo":
		if cur == stVstPluginInfo {
			p.pop()
		}
		return

	case "Tempo":
		if cur == stTempo {
			p.pop()
		}
		return

	case "Manual":
		if cur == stTempoManual {
			p.pop()
		}
		return

	case "ScaleInformation":
		if cur == stScaleInformation {
			p.pop()
		}
		return

	case "MidiClip":
		if cur == stMidiClip {
			p.pop()
		}
		return
	}
}

// scanBranchSourceContext reads ahead over the BranchSourceContext subtree
// looking for BrowserContentPath and BranchDeviceId. It abandons the lookup
// (returns ok=false) if a nested PluginDesc appears first, since the device
// id found after that point would belong to a different context.
func (p *parser) scanBranchSourceContext() (string, bool) {
	depth := 0 // count of child elements currently open inside this subtree
	var devID string
	haveBrowserPath := false
	foundNestedPluginDesc := false

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return "", false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "BrowserContentPath":
				haveBrowserPath = true
			case "BranchDeviceId":
				if v, ok := attrValue(t, "Value"); ok {
					devID = v
				}
			case "PluginDesc":
				foundNestedPluginDesc = true
				p.skipSubtree()
				continue
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				// This closes BranchSourceContext itself.
				if haveBrowserPath && devID != "" && !foundNestedPluginDesc {
					return devID, true
				}
				return "", false
			}
			depth--
		}
	}
}

// skipSubtree consumes tokens until the end tag matching the start tag
// just observed, used when BranchSourceContext lookahead must abandon.
func (p *parser) skipSubtree() {
	depth := 1
	for depth > 0 {
		tok, err := p.dec.Token()
		if err != nil {
			return
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
}

func (p *parser) result() *ParseResult {
	r := &ParseResult{
		Tempo:       p.tempo,
		HasTempo:    p.hasTempo,
		TimeSig:     p.timeSig,
		HasTimeSig:  p.hasTimeSig,
		SamplePaths: p.samplePaths,
		Plugins:     p.plugins,
		Warnings:    p.warnings,
	}

	if len(p.endTimes) > 0 && p.hasTimeSig && p.timeSig.Numerator > 0 {
		maxEnd := p.endTimes[0]
		for _, e := range p.endTimes[1:] {
			if e > maxEnd {
				maxEnd = e
			}
		}
		// Conflates beats-per-bar with denominator-weighted bars; kept as
		// observed in the source, not "fixed".
		r.FurthestBar = maxEnd / float64(p.timeSig.Numerator)
		r.HasDuration = true
	}

	if len(p.keyVotes) > 0 {
		var bestKey keyPair
		bestVotes := -1
		bestSeen := int(^uint(0) >> 1)
		for kp, votes := range p.keyVotes {
			seen := p.keyFirstSeen[kp]
			if votes > bestVotes || (votes == bestVotes && seen < bestSeen) {
				bestKey = kp
				bestVotes = votes
				bestSeen = seen
			}
		}
		r.KeyTonic = bestKey.tonic
		r.KeyScale = bestKey.scale
	}

	return r
}
