package convo

import (
	"encoding/binary"
	"math"
)

const (
	DefaultSpeechEnergyThreshold = 0.01
	DefaultSilenceThresholdMS    = 800
)

// TurnDetector signals end-of-turn after a configurable span of silence in
// 16-bit PCM chunks. One detector serves one session; it keeps a single
// silence timer and is not safe for concurrent chunk delivery.
type TurnDetector struct {
	energyThreshold    float64
	silenceThresholdMS int64

	silenceStartMS int64
	inSilence      bool
	fired          bool
}

func NewTurnDetector(energyThreshold float64, silenceThresholdMS int64) *TurnDetector {
	if energyThreshold <= 0 {
		energyThreshold = DefaultSpeechEnergyThreshold
	}
	if silenceThresholdMS <= 0 {
		silenceThresholdMS = DefaultSilenceThresholdMS
	}
	return &TurnDetector{energyThreshold: energyThreshold, silenceThresholdMS: silenceThresholdMS}
}

// Feed consumes one PCM chunk stamped with its position in the stream and
// reports whether this chunk crossed the end-of-turn silence threshold.
// Speech resets the silence timer; after end-of-turn fires, the detector
// stays quiet until speech resumes.
func (d *TurnDetector) Feed(pcm []byte, timestampMS int64) bool {
	if ChunkEnergy(pcm) > d.energyThreshold {
		d.inSilence = false
		d.fired = false
		return false
	}
	if !d.inSilence {
		d.inSilence = true
		d.silenceStartMS = timestampMS
		return false
	}
	if d.fired {
		return false
	}
	if timestampMS-d.silenceStartMS >= d.silenceThresholdMS {
		d.fired = true
		return true
	}
	return false
}

// Reset clears the silence timer, e.g. when a new turn begins.
func (d *TurnDetector) Reset() {
	d.inSilence = false
	d.fired = false
	d.silenceStartMS = 0
}

// ChunkEnergy computes RMS energy of a 16-bit little-endian PCM chunk,
// normalized to [0, 1].
func ChunkEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
