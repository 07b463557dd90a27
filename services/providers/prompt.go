package providers

import (
	"fmt"
	"math"

	"transitions-api-go/logcolors"
	"transitions-api-go/services/transitions"
	"transitions-api-go/utils"

	log "github.com/sirupsen/logrus"
)

const unknownArtist = "Unknown Artist"

var musicGenStyles = map[transitions.Style]string{
	transitions.StyleAmbient:   "atmospheric pads, subtle textures, no vocals, minimal percussion",
	transitions.StyleLofi:      "warm vinyl crackle, soft piano, gentle drums, nostalgic",
	transitions.StyleHouse:     "pulsing bass, four-on-the-floor rhythm, synth stabs, danceable",
	transitions.StyleCinematic: "orchestral swells, dramatic strings, epic atmosphere, emotional",
}

var stableAudioStyles = map[transitions.Style]string{
	transitions.StyleAmbient:   "atmospheric pads, subtle textures, no vocals, minimal percussion, ethereal",
	transitions.StyleLofi:      "warm vinyl crackle, soft piano, gentle drums, nostalgic, cozy",
	transitions.StyleHouse:     "pulsing bass, four-on-the-floor rhythm, synth stabs, danceable, energetic",
	transitions.StyleCinematic: "orchestral swells, dramatic strings, epic atmosphere, emotional, grand",
}

// MusicGenPrompt builds the short text prompt used by the MusicGen family of models.
// Track names are not included; the model responds better to pure texture descriptions.
func MusicGenPrompt(req transitions.Resolved) string {
	energy := "mid to high"
	if e := req.Overrides.Energy; e != nil {
		switch {
		case *e < 0.5:
			energy = "low to mid"
		case *e < 0.7:
			energy = "mid"
		}
	}

	tempo := "moderate"
	if t := req.Overrides.Tempo; t != nil {
		switch {
		case *t < 0.4:
			tempo = "slow, gentle"
		case *t < 0.7:
			tempo = "moderate"
		default:
			tempo = "faster, energetic"
		}
	}

	return fmt.Sprintf("%d-second %s transition, smooth, %s, energy %s, %s tempo shift, seamless blend, no abrupt changes",
		req.Seconds, req.Style, styleDescription(musicGenStyles, req.Style), energy, tempo)
}

// StableAudioPrompt builds the longer prompt used by Stable Audio models.
// The B side leans slightly more energetic and faster than the A side.
func StableAudioPrompt(req transitions.Resolved) string {
	energyFrom, energyTo := "mid", "mid-high"
	if e := req.Overrides.Energy; e != nil {
		energyFrom = energyLabel(*e)
		energyTo = energyLabel(math.Min(1, *e+0.2))
	}

	tempoFrom, tempoTo := "moderate", "moderate"
	if t := req.Overrides.Tempo; t != nil {
		tempoFrom = tempoLabel(*t)
		tempoTo = tempoLabel(math.Min(1, *t+0.1))
	}

	return fmt.Sprintf("%d-second %s transition between the songs '%s' by %s and '%s' by %s. "+
		"Smooth, no vocals, gentle energy change from %s to %s, tempo moving from %s to %s. "+
		"%s, seamless blend, no abrupt changes.",
		req.Seconds, req.Style,
		req.TrackA.Name, artistOrUnknown(req.TrackA.Artist),
		req.TrackB.Name, artistOrUnknown(req.TrackB.Artist),
		energyFrom, energyTo, tempoFrom, tempoTo,
		styleDescription(stableAudioStyles, req.Style))
}

func energyLabel(v float64) string {
	switch {
	case v < 0.3:
		return "low"
	case v < 0.5:
		return "low-mid"
	case v < 0.7:
		return "mid"
	default:
		return "high"
	}
}

// tempoLabel maps a unit value onto 60..180 bpm and names the band
func tempoLabel(v float64) string {
	bpm := math.Round(60 + v*120)
	switch {
	case bpm < 80:
		return "slow"
	case bpm < 120:
		return "moderate"
	case bpm < 150:
		return "upbeat"
	default:
		return "fast"
	}
}

func artistOrUnknown(artist string) string {
	if artist == "" {
		return unknownArtist
	}
	return artist
}

func styleDescription(table map[transitions.Style]string, style transitions.Style) string {
	if desc, ok := table[style]; ok {
		return desc
	}
	return table[transitions.StyleAmbient]
}

// LogPrompt records the prompt sent upstream, shortened for readability
func LogPrompt(provider, prompt string) {
	log.Debugf("%s %s prompt: %s", logcolors.LogPrompt, provider, utils.Truncate(prompt, 200))
}
