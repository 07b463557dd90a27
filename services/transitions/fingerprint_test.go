package transitions

import (
	"math"
	"regexp"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func baseResolved() Resolved {
	return Resolved{
		TrackA:  Track{ID: "t1", Name: "A"},
		TrackB:  Track{ID: "t2", Name: "B"},
		Seconds: 5,
		Style:   StyleAmbient,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	r := baseResolved()
	if Fingerprint(r) != Fingerprint(r) {
		t.Error("Expected identical requests to fingerprint identically")
	}
}

func TestFingerprint_FixedLengthHex(t *testing.T) {
	fp := Fingerprint(baseResolved())
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(fp) {
		t.Errorf("Expected 64 lowercase hex chars, got %q", fp)
	}
}

func TestFingerprint_FieldsThatMatter(t *testing.T) {
	base := Fingerprint(baseResolved())

	tests := []struct {
		name   string
		mutate func(r *Resolved)
	}{
		{name: "trackA id", mutate: func(r *Resolved) { r.TrackA.ID = "t3" }},
		{name: "trackB id", mutate: func(r *Resolved) { r.TrackB.ID = "t3" }},
		{name: "seconds", mutate: func(r *Resolved) { r.Seconds = 6 }},
		{name: "style", mutate: func(r *Resolved) { r.Style = StyleLofi }},
		{name: "tempo present", mutate: func(r *Resolved) { r.Overrides.Tempo = floatPtr(0.7) }},
		{name: "energy present", mutate: func(r *Resolved) { r.Overrides.Energy = floatPtr(0.7) }},
		{name: "speed present", mutate: func(r *Resolved) { r.Overrides.Speed = floatPtr(0.7) }},
		{name: "swapped tracks", mutate: func(r *Resolved) { r.TrackA.ID, r.TrackB.ID = r.TrackB.ID, r.TrackA.ID }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseResolved()
			tt.mutate(&r)
			if Fingerprint(r) == base {
				t.Errorf("Expected %s to change the fingerprint", tt.name)
			}
		})
	}
}

func TestFingerprint_DisplayFieldsIgnored(t *testing.T) {
	base := Fingerprint(baseResolved())

	r := baseResolved()
	r.TrackA.Name = "Another Name"
	r.TrackB.Artist = "Someone"

	if Fingerprint(r) != base {
		t.Error("Expected names and artists to not affect the fingerprint")
	}
}

func TestFingerprint_AbsentVersusZero(t *testing.T) {
	absent := baseResolved()
	zero := baseResolved()
	zero.Overrides.Tempo = floatPtr(0)

	if Fingerprint(absent) == Fingerprint(zero) {
		t.Error("Expected an absent override to differ from an explicit 0")
	}
}

func TestFingerprint_OverridePositionMatters(t *testing.T) {
	tempo := baseResolved()
	tempo.Overrides.Tempo = floatPtr(0.5)
	energy := baseResolved()
	energy.Overrides.Energy = floatPtr(0.5)

	if Fingerprint(tempo) == Fingerprint(energy) {
		t.Error("Expected the same value on different overrides to differ")
	}
}

func TestFingerprint_NegativeZeroNormalized(t *testing.T) {
	pos := baseResolved()
	pos.Overrides.Energy = floatPtr(0)
	neg := baseResolved()
	neg.Overrides.Energy = floatPtr(math.Copysign(0, -1))

	if Fingerprint(pos) != Fingerprint(neg) {
		t.Error("Expected -0 and 0 to fingerprint identically")
	}
}

func TestFingerprint_SeparatorsInIDsCannotCollide(t *testing.T) {
	a := baseResolved()
	a.TrackA.ID = "x;1:y"
	a.TrackB.ID = "z"

	b := baseResolved()
	b.TrackA.ID = "x"
	b.TrackB.ID = "1:y;z"

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("Expected ids containing separators to stay distinct")
	}
}

func TestFingerprint_DefaultsAreEquivalentToExplicit(t *testing.T) {
	defaults := Defaults{Seconds: 5, Style: StyleAmbient}

	implicit := Request{
		TrackA: Track{ID: "t1", Name: "A"},
		TrackB: Track{ID: "t2", Name: "B"},
	}
	seconds := 5
	style := StyleAmbient
	explicit := implicit
	explicit.Seconds = &seconds
	explicit.Style = &style

	if Fingerprint(implicit.Resolve(defaults)) != Fingerprint(explicit.Resolve(defaults)) {
		t.Error("Expected omitted fields to match the explicit default values")
	}
}
