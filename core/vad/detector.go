package vad

import (
	"context"
	"time"

	"github.com/TreasureProject/voicecore/core/audio"
)

// State is the detector's position in the utterance lifecycle.
type State string

const (
	// StateIdle means no speech-like frames have been seen recently.
	StateIdle State = "idle"
	// StateArmed means a run of speech-like frames is building towards the
	// debounce threshold.
	StateArmed State = "armed"
	// StateRecording means an utterance is being buffered.
	StateRecording State = "recording"
)

const (
	defaultDebounceFrames = 3
	defaultPreRoll        = 300 * time.Millisecond
	defaultSilenceTimeout = 1000 * time.Millisecond
	defaultMaxUtterance   = 10 * time.Second
)

type detectorOptions struct {
	thresholds     Thresholds
	debounceFrames int
	preRoll        time.Duration
	silenceTimeout time.Duration
	maxUtterance   time.Duration
}

type DetectorOption func(*detectorOptions)

// WithThresholds overrides the per-frame classification criteria.
func WithThresholds(thresholds Thresholds) DetectorOption {
	return func(o *detectorOptions) { o.thresholds = thresholds }
}

// WithDebounceFrames sets how many consecutive speech-like frames are needed
// before recording starts. Values below one are ignored.
func WithDebounceFrames(frames int) DetectorOption {
	return func(o *detectorOptions) {
		if frames >= 1 {
			o.debounceFrames = frames
		}
	}
}

// WithPreRoll sets how much audio from before the detected onset is kept at
// the front of each segment, so plosive word starts are not clipped.
func WithPreRoll(preRoll time.Duration) DetectorOption {
	return func(o *detectorOptions) {
		if preRoll >= 0 {
			o.preRoll = preRoll
		}
	}
}

// WithSilenceTimeout sets how much trailing silence ends an utterance.
func WithSilenceTimeout(timeout time.Duration) DetectorOption {
	return func(o *detectorOptions) {
		if timeout > 0 {
			o.silenceTimeout = timeout
		}
	}
}

// WithMaxUtterance caps how long a single utterance can grow before it is
// force-finalized, bounding memory when the room never goes quiet.
func WithMaxUtterance(max time.Duration) DetectorOption {
	return func(o *detectorOptions) {
		if max > 0 {
			o.maxUtterance = max
		}
	}
}

// Detector is the utterance state machine. It consumes classified frames in
// capture order and emits a bounded audio segment per detected utterance.
// Not safe for concurrent use; feed it from a single goroutine.
type Detector struct {
	options detectorOptions

	state     State
	speechRun int

	// preRoll holds the most recent frames from before recording started,
	// trimmed to the configured pre-roll duration but never below the
	// debounce run itself.
	preRoll       []audio.Frame
	preRollVoiced time.Duration

	utterance    []byte
	utteranceDur time.Duration
	silenceDur   time.Duration
	encoding     audio.EncodingInfo
	start        time.Time
}

func NewDetector(opts ...DetectorOption) *Detector {
	options := detectorOptions{
		thresholds:     DefaultThresholds(),
		debounceFrames: defaultDebounceFrames,
		preRoll:        defaultPreRoll,
		silenceTimeout: defaultSilenceTimeout,
		maxUtterance:   defaultMaxUtterance,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Detector{options: options, state: StateIdle}
}

// State is the current lifecycle state.
func (d *Detector) State() State { return d.state }

// ProcessFrame advances the state machine by one captured frame. It returns a
// finished segment when the frame completed an utterance, either by trailing
// silence or by hitting the utterance cap, and nil otherwise.
func (d *Detector) ProcessFrame(frame audio.Frame) (*audio.Segment, Classification) {
	classification := Classify(audio.DecodePCM16(frame.PCM), d.options.thresholds)

	if d.state == StateRecording {
		return d.record(frame, classification), classification
	}

	d.buffer(frame)

	if !classification.Speech {
		if d.state == StateArmed {
			d.state = StateIdle
		}
		d.speechRun = 0
		return nil, classification
	}

	d.speechRun++
	if d.speechRun < d.options.debounceFrames {
		d.state = StateArmed
		return nil, classification
	}

	// Debounced onset. Seed the utterance with the buffered pre-roll, which
	// includes the armed run itself.
	d.state = StateRecording
	d.utterance = d.utterance[:0]
	d.utteranceDur = 0
	d.silenceDur = 0
	d.encoding = frame.Encoding
	if len(d.preRoll) > 0 {
		d.start = d.preRoll[0].Captured
	} else {
		d.start = frame.Captured
	}
	for _, buffered := range d.preRoll {
		d.utterance = append(d.utterance, buffered.PCM...)
		d.utteranceDur += buffered.Duration()
	}
	d.preRoll = d.preRoll[:0]
	d.preRollVoiced = 0

	logger.Debug("utterance started",
		"start", d.start, "pre_roll", d.utteranceDur,
		"energy", classification.Energy)

	if d.utteranceDur >= d.options.maxUtterance {
		return d.finalize("max utterance reached"), classification
	}
	return nil, classification
}

// Flush force-finalizes an in-flight utterance, for shutdown. It returns nil
// when nothing was being recorded.
func (d *Detector) Flush() *audio.Segment {
	if d.state != StateRecording {
		return nil
	}
	return d.finalize("flushed")
}

// Reset drops all buffered audio and returns to idle without emitting.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.speechRun = 0
	d.preRoll = d.preRoll[:0]
	d.preRollVoiced = 0
	d.utterance = nil
	d.utteranceDur = 0
	d.silenceDur = 0
}

func (d *Detector) record(frame audio.Frame, classification Classification) *audio.Segment {
	d.utterance = append(d.utterance, frame.PCM...)
	d.utteranceDur += frame.Duration()

	if classification.Speech {
		d.silenceDur = 0
	} else {
		d.silenceDur += frame.Duration()
		if d.silenceDur >= d.options.silenceTimeout {
			return d.finalize("trailing silence")
		}
	}

	if d.utteranceDur >= d.options.maxUtterance {
		return d.finalize("max utterance reached")
	}
	return nil
}

// buffer keeps the most recent idle frames so the segment can start slightly
// before the detected onset.
func (d *Detector) buffer(frame audio.Frame) {
	d.preRoll = append(d.preRoll, frame)
	d.preRollVoiced += frame.Duration()

	// Trim from the front, but never trim away the current armed run.
	for len(d.preRoll) > d.speechRun+1 &&
		d.preRollVoiced-d.preRoll[0].Duration() >= d.options.preRoll {
		d.preRollVoiced -= d.preRoll[0].Duration()
		d.preRoll = d.preRoll[1:]
	}
}

func (d *Detector) finalize(reason string) *audio.Segment {
	segment := audio.NewSegment(d.utterance, d.encoding, d.start)

	logger.Info("utterance finalized",
		"segment_id", segment.ID, "duration", segment.Duration(), "reason", reason)
	segmentsEmitted.Add(context.Background(), 1)

	d.Reset()
	return &segment
}
