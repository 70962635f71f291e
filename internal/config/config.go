// Package config loads and validates the agent configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio        AudioConfig        `yaml:"audio" json:"audio"`
	VAD          VADConfig          `yaml:"vad" json:"vad"`
	Turn         TurnConfig         `yaml:"turn" json:"turn"`
	Supervisor   SupervisorConfig   `yaml:"supervisor" json:"supervisor"`
	SpeechToText SpeechToTextConfig `yaml:"speech_to_text" json:"speech_to_text"`
	TextToSpeech TextToSpeechConfig `yaml:"text_to_speech" json:"text_to_speech"`
	Responder    ResponderConfig    `yaml:"responder" json:"responder"`
}

type AudioConfig struct {
	// Backend selects the device layer: miniaudio, portaudio or none.
	Backend string `yaml:"backend" json:"backend"`
	// DeviceIndex selects the capture device by enumeration index; -1 keeps
	// the system default.
	DeviceIndex int `yaml:"device_index" json:"device_index"`
	// SampleRate is the capture rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`
	// FrameMs is the analysis window size in milliseconds.
	FrameMs int `yaml:"frame_ms" json:"frame_ms"`
}

type VADConfig struct {
	EnergyThreshold float64 `yaml:"energy_threshold" json:"energy_threshold"`
	ZCRMin          float64 `yaml:"zcr_min" json:"zcr_min"`
	ZCRMax          float64 `yaml:"zcr_max" json:"zcr_max"`
	CentroidMin     float64 `yaml:"centroid_min" json:"centroid_min"`
	CentroidMax     float64 `yaml:"centroid_max" json:"centroid_max"`
	// Composition is how the secondary criteria combine: any or all.
	Composition      string `yaml:"composition" json:"composition"`
	DebounceFrames   int    `yaml:"debounce_frames" json:"debounce_frames"`
	PreRollMs        int    `yaml:"pre_roll_ms" json:"pre_roll_ms"`
	SilenceTimeoutMs int    `yaml:"silence_timeout_ms" json:"silence_timeout_ms"`
	MaxUtteranceMs   int    `yaml:"max_utterance_ms" json:"max_utterance_ms"`
}

type TurnConfig struct {
	// OverlapPolicy is what happens to speech detected mid-turn: drop or
	// buffer_latest.
	OverlapPolicy         string `yaml:"overlap_policy" json:"overlap_policy"`
	CollaboratorTimeoutMs int    `yaml:"collaborator_timeout_ms" json:"collaborator_timeout_ms"`
	MaxHistory            int    `yaml:"max_history" json:"max_history"`
}

type SupervisorConfig struct {
	MaxRestarts      int `yaml:"max_restarts" json:"max_restarts"`
	RestartBackoffMs int `yaml:"restart_backoff_ms" json:"restart_backoff_ms"`
	StopTimeoutMs    int `yaml:"stop_timeout_ms" json:"stop_timeout_ms"`
}

type SpeechToTextConfig struct {
	// Provider selects the transcription backend: deepgram, whisper or none.
	Provider string `yaml:"provider" json:"provider"`
	// Model is provider specific; empty keeps the provider's default.
	Model    string `yaml:"model" json:"model"`
	Language string `yaml:"language" json:"language"`
}

type TextToSpeechConfig struct {
	// Provider selects the synthesis backend: deepgram or none.
	Provider string `yaml:"provider" json:"provider"`
	Voice    string `yaml:"voice" json:"voice"`
}

type ResponderConfig struct {
	// BaseURL is the chat backend endpoint; empty disables reply generation.
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// Default is the configuration used when no file is given; a loaded file
// overrides it field by field.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Backend:     "miniaudio",
			DeviceIndex: -1,
			SampleRate:  16000,
			FrameMs:     50,
		},
		VAD: VADConfig{
			EnergyThreshold:  0.01,
			ZCRMin:           0.1,
			ZCRMax:           0.5,
			CentroidMin:      0.15,
			CentroidMax:      0.95,
			Composition:      "any",
			DebounceFrames:   3,
			PreRollMs:        300,
			SilenceTimeoutMs: 1000,
			MaxUtteranceMs:   10000,
		},
		Turn: TurnConfig{
			OverlapPolicy:         "drop",
			CollaboratorTimeoutMs: 30000,
			MaxHistory:            64,
		},
		Supervisor: SupervisorConfig{
			MaxRestarts:      3,
			RestartBackoffMs: 500,
			StopTimeoutMs:    5000,
		},
		SpeechToText: SpeechToTextConfig{
			Provider: "deepgram",
			Language: "en-US",
		},
		TextToSpeech: TextToSpeechConfig{
			Provider: "deepgram",
			Voice:    "aura-2-asteria-en",
		},
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected so typos fail loudly instead of silently keeping a default.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := Default()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate reports every problem at once instead of stopping at the first.
func (c *Config) Validate() error {
	var errs error

	switch c.Audio.Backend {
	case "miniaudio", "portaudio", "none":
	default:
		errs = errors.Join(errs, fmt.Errorf("audio.backend: unknown backend %q", c.Audio.Backend))
	}
	if c.Audio.FrameMs <= 0 {
		errs = errors.Join(errs, fmt.Errorf("audio.frame_ms: must be positive, got %d", c.Audio.FrameMs))
	}
	switch c.Audio.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		errs = errors.Join(errs, fmt.Errorf("audio.sample_rate: unsupported rate %d", c.Audio.SampleRate))
	}

	if c.VAD.ZCRMin > c.VAD.ZCRMax {
		errs = errors.Join(errs, fmt.Errorf("vad: zcr_min %f above zcr_max %f", c.VAD.ZCRMin, c.VAD.ZCRMax))
	}
	if c.VAD.CentroidMin > c.VAD.CentroidMax {
		errs = errors.Join(errs, fmt.Errorf("vad: centroid_min %f above centroid_max %f",
			c.VAD.CentroidMin, c.VAD.CentroidMax))
	}
	switch c.VAD.Composition {
	case "any", "all":
	default:
		errs = errors.Join(errs, fmt.Errorf("vad.composition: must be any or all, got %q", c.VAD.Composition))
	}
	if c.VAD.DebounceFrames < 1 {
		errs = errors.Join(errs, fmt.Errorf("vad.debounce_frames: must be at least 1, got %d", c.VAD.DebounceFrames))
	}
	if c.VAD.SilenceTimeoutMs <= 0 {
		errs = errors.Join(errs, fmt.Errorf("vad.silence_timeout_ms: must be positive, got %d", c.VAD.SilenceTimeoutMs))
	}
	if c.VAD.MaxUtteranceMs <= 0 {
		errs = errors.Join(errs, fmt.Errorf("vad.max_utterance_ms: must be positive, got %d", c.VAD.MaxUtteranceMs))
	}

	switch c.Turn.OverlapPolicy {
	case "drop", "buffer_latest":
	default:
		errs = errors.Join(errs, fmt.Errorf("turn.overlap_policy: must be drop or buffer_latest, got %q",
			c.Turn.OverlapPolicy))
	}
	if c.Turn.CollaboratorTimeoutMs <= 0 {
		errs = errors.Join(errs, fmt.Errorf("turn.collaborator_timeout_ms: must be positive, got %d",
			c.Turn.CollaboratorTimeoutMs))
	}

	if c.Supervisor.MaxRestarts < 0 {
		errs = errors.Join(errs, fmt.Errorf("supervisor.max_restarts: must not be negative, got %d",
			c.Supervisor.MaxRestarts))
	}

	switch c.SpeechToText.Provider {
	case "deepgram", "whisper", "none":
	default:
		errs = errors.Join(errs, fmt.Errorf("speech_to_text.provider: unknown provider %q", c.SpeechToText.Provider))
	}
	switch c.TextToSpeech.Provider {
	case "deepgram", "none":
	default:
		errs = errors.Join(errs, fmt.Errorf("text_to_speech.provider: unknown provider %q", c.TextToSpeech.Provider))
	}

	return errs
}

// Duration helpers so callers do not repeat the millisecond conversion.

func (c VADConfig) PreRoll() time.Duration { return time.Duration(c.PreRollMs) * time.Millisecond }

func (c VADConfig) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutMs) * time.Millisecond
}

func (c VADConfig) MaxUtterance() time.Duration {
	return time.Duration(c.MaxUtteranceMs) * time.Millisecond
}

func (c AudioConfig) FrameDuration() time.Duration { return time.Duration(c.FrameMs) * time.Millisecond }

func (c TurnConfig) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutMs) * time.Millisecond
}

func (c SupervisorConfig) RestartBackoff() time.Duration {
	return time.Duration(c.RestartBackoffMs) * time.Millisecond
}

func (c SupervisorConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// Schema renders the configuration's JSON schema, for editor completion and
// config linting.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(Config{})

	rendered, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render schema: %w", err)
	}
	return rendered, nil
}
