package transitions

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
)

// absentOverride is the token written for an override the client did not send.
// Present values are prefixed with '=', so the two can never collide.
const absentOverride = "-"

// Fingerprint derives the cache identity of a resolved request.
// Every field that changes what gets generated is included; names and
// artists are display-only and deliberately left out.
func Fingerprint(r Resolved) string {
	h := sha256.New()
	writeField(h, r.TrackA.ID)
	writeField(h, r.TrackB.ID)
	writeField(h, strconv.Itoa(r.Seconds))
	writeField(h, string(r.Style))
	writeField(h, overrideToken(r.Overrides.Tempo))
	writeField(h, overrideToken(r.Overrides.Energy))
	writeField(h, overrideToken(r.Overrides.Speed))
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes the value so separators inside ids cannot shift boundaries
func writeField(h hash.Hash, value string) {
	h.Write([]byte(strconv.Itoa(len(value))))
	h.Write([]byte{':'})
	h.Write([]byte(value))
	h.Write([]byte{';'})
}

func overrideToken(v *float64) string {
	if v == nil {
		return absentOverride
	}
	f := *v
	if f == 0 {
		f = 0 // folds -0 into +0
	}
	return "=" + strconv.FormatFloat(f, 'g', -1, 64)
}
