package transitions

import (
	"fmt"
	"math"
	"strings"
)

const (
	MinSeconds = 3
	MaxSeconds = 8
)

// Style selects the musical character of a transition
type Style string

const (
	StyleAmbient   Style = "ambient"
	StyleLofi      Style = "lofi"
	StyleHouse     Style = "house"
	StyleCinematic Style = "cinematic"
)

// Styles lists every supported style in display order
var Styles = []Style{StyleAmbient, StyleLofi, StyleHouse, StyleCinematic}

// Valid reports whether s is one of the supported styles
func (s Style) Valid() bool {
	for _, candidate := range Styles {
		if s == candidate {
			return true
		}
	}
	return false
}

// Track identifies one side of a transition
type Track struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist,omitempty"`
}

// Overrides are optional generation controls, each in [0,1]
type Overrides struct {
	Tempo  *float64 `json:"tempo,omitempty"`
	Energy *float64 `json:"energy,omitempty"`
	Speed  *float64 `json:"speed,omitempty"`
}

// Request is a transition request as received from a client.
// Optional fields stay nil until Resolve applies the configured defaults.
type Request struct {
	TrackA    Track      `json:"trackA"`
	TrackB    Track      `json:"trackB"`
	Seconds   *int       `json:"seconds,omitempty"`
	Style     *Style     `json:"style,omitempty"`
	Overrides *Overrides `json:"overrides,omitempty"`
}

// Defaults are the system-wide values used for omitted request fields
type Defaults struct {
	Seconds int
	Style   Style
}

// Resolved is a validated request with defaults applied
type Resolved struct {
	TrackA    Track
	TrackB    Track
	Seconds   int
	Style     Style
	Overrides Overrides
}

// Result describes a transition ready to be fetched
type Result struct {
	TransitionID string `json:"transitionId"`
	URL          string `json:"url"`
	Cached       bool   `json:"cached"`
}

// Validate checks every field and reports all violations at once
func (r Request) Validate() error {
	var problems []string

	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, field+": must not be empty")
		}
	}
	check("trackA.id", r.TrackA.ID)
	check("trackA.name", r.TrackA.Name)
	check("trackB.id", r.TrackB.ID)
	check("trackB.name", r.TrackB.Name)

	if r.Seconds != nil && (*r.Seconds < MinSeconds || *r.Seconds > MaxSeconds) {
		problems = append(problems, fmt.Sprintf("seconds: must be between %d and %d", MinSeconds, MaxSeconds))
	}

	if r.Style != nil && !r.Style.Valid() {
		problems = append(problems, fmt.Sprintf("style: must be one of %s", joinStyles()))
	}

	if r.Overrides != nil {
		checkUnit := func(field string, v *float64) {
			if v == nil {
				return
			}
			if math.IsNaN(*v) || *v < 0 || *v > 1 {
				problems = append(problems, "overrides."+field+": must be between 0 and 1")
			}
		}
		checkUnit("tempo", r.Overrides.Tempo)
		checkUnit("energy", r.Overrides.Energy)
		checkUnit("speed", r.Overrides.Speed)
	}

	if len(problems) > 0 {
		return NewError(KindValidation, strings.Join(problems, ", "), nil)
	}
	return nil
}

// Resolve applies defaults to the optional fields
func (r Request) Resolve(d Defaults) Resolved {
	resolved := Resolved{
		TrackA:  r.TrackA,
		TrackB:  r.TrackB,
		Seconds: d.Seconds,
		Style:   d.Style,
	}
	if r.Seconds != nil {
		resolved.Seconds = *r.Seconds
	}
	if r.Style != nil {
		resolved.Style = *r.Style
	}
	if r.Overrides != nil {
		resolved.Overrides = *r.Overrides
	}
	return resolved
}

// Validate checks that defaults could themselves be used for a request
func (d Defaults) Validate() error {
	if d.Seconds < MinSeconds || d.Seconds > MaxSeconds {
		return fmt.Errorf("default seconds %d out of range %d..%d", d.Seconds, MinSeconds, MaxSeconds)
	}
	if !d.Style.Valid() {
		return fmt.Errorf("default style %q must be one of %s", d.Style, joinStyles())
	}
	return nil
}

func joinStyles() string {
	names := make([]string, len(Styles))
	for i, s := range Styles {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// URLFor returns the relative URL an artifact is served from
func URLFor(transitionID string) string {
	return "/transitions/" + transitionID
}
