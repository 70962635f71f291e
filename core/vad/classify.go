// Package vad implements multi-criteria voice activity detection over fixed
// size PCM frames: a pure per-frame classifier and a state machine that turns
// classified frames into buffered utterance segments.
package vad

import "math"

// Band is an inclusive range a signal metric must fall in to count as
// speech-typical.
type Band struct {
	Min float64
	Max float64
}

// Contains reports whether v falls inside the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Composition selects how the secondary criteria combine with the energy
// gate.
type Composition string

const (
	// ComposeAny accepts a frame when energy passes and at least one of the
	// zero-crossing rate or spectral centroid is in its speech band. This is
	// the default: it rejects transient loud noises (door slams) that fail
	// both spectral checks.
	ComposeAny Composition = "any"
	// ComposeAll additionally requires both secondary criteria to pass.
	ComposeAll Composition = "all"
)

// Thresholds are the tunable classification criteria.
type Thresholds struct {
	// Energy is the minimum RMS energy (0..1 over normalized samples) a
	// speech-like frame must reach. The energy gate always applies.
	Energy float64
	// ZCRBand is the speech-typical zero-crossing-rate range (0..1).
	ZCRBand Band
	// SpectralBand is the speech-typical normalized spectral-centroid range
	// (0..1).
	SpectralBand Band
	// Composition selects ComposeAny (default) or ComposeAll.
	Composition Composition
}

// DefaultThresholds are a workable starting point for 16 kHz close-mic audio.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Energy:       0.01,
		ZCRBand:      Band{Min: 0.1, Max: 0.5},
		SpectralBand: Band{Min: 0.15, Max: 0.95},
		Composition:  ComposeAny,
	}
}

// Classification is the result of analysing one frame. The individual metrics
// are kept so callers can log or display them.
type Classification struct {
	Energy           float64
	ZeroCrossingRate float64
	SpectralCentroid float64

	Speech bool
}

// Classify analyses one frame of signed 16-bit samples against the
// thresholds. It is a pure function: equal input always yields equal output,
// independent of any device or detector state.
func Classify(samples []int16, thresholds Thresholds) Classification {
	if len(samples) == 0 {
		return Classification{}
	}

	c := Classification{
		Energy:           rmsEnergy(samples),
		ZeroCrossingRate: zeroCrossingRate(samples),
		SpectralCentroid: spectralCentroid(samples),
	}

	energyOK := c.Energy > thresholds.Energy
	zcrOK := thresholds.ZCRBand.Contains(c.ZeroCrossingRate)
	spectralOK := thresholds.SpectralBand.Contains(c.SpectralCentroid)

	switch thresholds.Composition {
	case ComposeAll:
		c.Speech = energyOK && zcrOK && spectralOK
	default:
		c.Speech = energyOK && (zcrOK || spectralOK)
	}

	return c
}

// rmsEnergy is the root-mean-square of the samples normalized to [-1, 1).
func rmsEnergy(samples []int16) float64 {
	sum := 0.0
	for _, s := range samples {
		normalized := float64(s) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// zeroCrossingRate is the fraction of adjacent sample pairs whose signs
// differ. Voiced speech typically sits between steady hums (low) and
// broadband hiss (high).
func zeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i] >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// spectralCentroid approximates where the frame's energy sits in the
// spectrum, normalized to [0, 1]: 0 for pure low-frequency rumble, towards 1
// for high-frequency hiss. Consecutive sample pairs are treated as complex
// values to get a cheap magnitude distribution without a full FFT.
func spectralCentroid(samples []int16) float64 {
	bins := len(samples) / 2
	if bins < 2 {
		return 0
	}

	magnitudeSum := 0.0
	weightedSum := 0.0
	for i := range bins {
		re := float64(samples[2*i]) / 32768.0
		im := float64(samples[2*i+1]) / 32768.0
		magnitude := math.Hypot(re, im)
		magnitudeSum += magnitude
		weightedSum += float64(i) * magnitude
	}

	if magnitudeSum == 0 {
		return 0
	}
	return weightedSum / (magnitudeSum * float64(bins-1))
}
