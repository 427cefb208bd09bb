// Package canon implements the canonical JSON encoding that backs
// content-addressing across the engine: sorted object keys, no
// insignificant whitespace, NFC-normalised strings, and numbers without a
// trailing ".0". Two JSON values that are semantically identical always
// produce the same canonical bytes, which is the property the rest of the
// engine leans on for deduplication (distinction_id) and wire/disk framing.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
	"lukechampine.com/blake3"
)

// Encode produces the canonical byte representation of an arbitrary JSON
// value (object, array, string, number, bool, or null).
func Encode(value any) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(mustRoundTrip(value)))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canon: decode value: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mustRoundTrip accepts either raw JSON-compatible Go values (map, slice,
// string, ...) or a value already produced by encoding/json and normalises
// it to raw JSON bytes so Encode has a single decode path.
func mustRoundTrip(value any) []byte {
	if raw, ok := value.(json.RawMessage); ok {
		return raw
	}
	if raw, ok := value.([]byte); ok {
		return raw
	}
	data, err := json.Marshal(value)
	if err != nil {
		// Values flowing through this package are always already
		// JSON-shaped (decoded from storage or a prior canonical
		// encode); a Marshal failure here means the caller passed
		// something that was never valid JSON to begin with.
		return []byte("null")
	}
	return data
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(canonicalNumber(v))
	case string:
		writeCanonicalString(buf, v)
	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, norm.NFC.String(k))
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canon: unsupported value type %T", value)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	normalized := norm.NFC.String(s)
	encoded, _ := json.Marshal(normalized)
	buf.Write(encoded)
}

// canonicalNumber strips a trailing ".0" produced by a float-valued literal
// like `30.0` while leaving genuine fractional numbers and big integers
// untouched — json.Number already preserves the original source text, we
// just need to collapse the redundant zero fraction.
func canonicalNumber(n json.Number) string {
	s := string(n)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f == float64(int64(f)) && !hasExponent(s) {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return s
}

func hasExponent(s string) bool {
	for _, r := range s {
		if r == 'e' || r == 'E' {
			return true
		}
	}
	return false
}

// Hash returns the BLAKE3-256 content hash of value's canonical encoding.
// This is the distinction_id: two values with identical canonical bytes
// always hash to the same identifier, which is how ValueStore deduplicates.
func Hash(value any) (DistinctionID, []byte, error) {
	encoded, err := Encode(value)
	if err != nil {
		return DistinctionID{}, nil, err
	}
	h := blake3.New(32, nil)
	h.Write(encoded)
	var id DistinctionID
	copy(id[:], h.Sum(nil))
	return id, encoded, nil
}

// DistinctionID is a 32-byte BLAKE3 content hash of a canonical JSON value.
type DistinctionID [32]byte

func (id DistinctionID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// IsZero reports whether id is the unset zero value.
func (id DistinctionID) IsZero() bool {
	return id == DistinctionID{}
}

// ParseDistinctionID parses a hex-encoded distinction_id.
func ParseDistinctionID(s string) (DistinctionID, error) {
	var id DistinctionID
	if len(s) != len(id)*2 {
		return id, fmt.Errorf("canon: distinction_id %q has wrong length", s)
	}
	for i := range id {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return DistinctionID{}, fmt.Errorf("canon: invalid distinction_id %q: %w", s, err)
		}
		id[i] = b
	}
	return id, nil
}
