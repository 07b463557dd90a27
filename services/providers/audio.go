package providers

import (
	"bytes"
	"encoding/binary"

	"transitions-api-go/logcolors"
	"transitions-api-go/services/transitions"

	log "github.com/sirupsen/logrus"
)

const (
	minAudioBytes = 12
	minDuration   = 0.1

	// 16-bit stereo at 44.1kHz
	assumedBytesPerSecond = 2 * 2 * 44100
)

// AudioInfo summarizes what InspectAudio learned about a payload
type AudioInfo struct {
	Size     int
	IsWAV    bool
	Duration float64 // seconds, estimated from the data chunk; 0 when unknown
}

// InspectAudio rejects payloads too small to be audio and estimates the
// duration of WAV payloads. Non-WAV or very short audio only logs a warning.
func InspectAudio(provider string, data []byte) (AudioInfo, error) {
	info := AudioInfo{Size: len(data)}
	if len(data) < minAudioBytes {
		return info, transitions.Errorf(transitions.KindInvalidResponse,
			"audio payload too small (%d bytes)", len(data)).WithProvider(provider)
	}

	info.IsWAV = bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
	if !info.IsWAV {
		log.Warnf("%s %s returned non-WAV audio (%d bytes)", logcolors.LogAudio, provider, len(data))
		return info, nil
	}

	if size, ok := dataChunkSize(data); ok {
		info.Duration = float64(size) / assumedBytesPerSecond
		if info.Duration < minDuration {
			log.Warnf("%s %s returned very short audio (%.3fs)", logcolors.LogAudio, provider, info.Duration)
		}
	}

	log.Debugf("%s %s audio: %d bytes, ~%.2fs", logcolors.LogAudio, provider, info.Size, info.Duration)
	return info, nil
}

// dataChunkSize walks the RIFF chunks after the header and returns the size of "data"
func dataChunkSize(data []byte) (uint32, bool) {
	offset := 12
	for offset+8 <= len(data) {
		id := data[offset : offset+4]
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if bytes.Equal(id, []byte("data")) {
			return size, true
		}
		next := offset + 8 + int(size)
		if size%2 == 1 {
			next++ // chunks are word aligned
		}
		if next <= offset {
			return 0, false
		}
		offset = next
	}
	return 0, false
}
