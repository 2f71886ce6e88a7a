package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// fingerprintStrings returns a stable hex-encoded hash of an ordered list of
// strings. Used for violation ids; state fingerprints are hashed separately
// by fingerprintState.
func fingerprintStrings(parts []string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalValue renders a value deterministically for fingerprinting.
// Maps are sorted by key so that two observations built from the same
// logical content always serialize identically regardless of map
// iteration order.
func canonicalValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			b.WriteString(canonicalValue(val[k]))
		}
		b.WriteByte('}')
		return b.String()
	case []interface{}:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalValue(e))
		}
		b.WriteByte(']')
		return b.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// fingerprintState produces a stable fingerprint for a State's observable
// identity: the canonically-serialized observation set plus the context
// snapshot. Two States with the same fingerprint are considered equivalent
// for frontier deduplication.
func fingerprintState(observations map[string]Observation, context map[string]interface{}) string {
	systemNames := make([]string, 0, len(observations))
	for name := range observations {
		systemNames = append(systemNames, name)
	}
	sort.Strings(systemNames)

	var b strings.Builder
	for _, name := range systemNames {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(canonicalValue(observations[name].Data))
		b.WriteByte(';')
	}
	b.WriteString("ctx=")
	b.WriteString(canonicalValue(context))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
