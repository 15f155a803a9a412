package ingest

import "fmt"

// TimeSignature is a numerator/denominator pair as stored on Project.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// denominatorByIndex covers every denominator the Project entity allows
// (a power of two <= 16), in the order the encoded value's slot selects
// them. Five slots of 99 numerators each span the full [0,494] range.
var denominatorByIndex = [5]int{2, 4, 8, 16, 1}

// DecodeTimeSignature decodes the encoded EnumEvent value per the scheme:
// denominator index d = v/99 (0->2,1->4,2->8,3->16,4->1), numerator n = v%99+1.
func DecodeTimeSignature(v int) (TimeSignature, error) {
	if v < 0 || v > 494 {
		return TimeSignature{}, fmt.Errorf("time signature value %d out of range [0,494]", v)
	}
	d := v / 99
	n := (v % 99) + 1
	return TimeSignature{Numerator: n, Denominator: denominatorByIndex[d]}, nil
}

// EncodeTimeSignature is the inverse of DecodeTimeSignature, used by tests
// to assert the round-trip property.
func EncodeTimeSignature(ts TimeSignature) (int, error) {
	idx := -1
	for i, d := range denominatorByIndex {
		if d == ts.Denominator {
			idx = i
			break
		}
	}
	if idx == -1 {
		return 0, fmt.Errorf("denominator %d is not encodable", ts.Denominator)
	}
	if ts.Numerator < 1 || ts.Numerator > 99 {
		return 0, fmt.Errorf("numerator %d out of range [1,99]", ts.Numerator)
	}
	return idx*99 + (ts.Numerator - 1), nil
}
