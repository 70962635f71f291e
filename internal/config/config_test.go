package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voicecore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadOverridesDefaultsFieldByField(t *testing.T) {
	path := writeConfig(t, `
audio:
  backend: portaudio
  frame_ms: 20
vad:
  energy_threshold: 0.02
turn:
  overlap_policy: buffer_latest
`)

	config, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if config.Audio.Backend != "portaudio" {
		t.Errorf("backend = %q, want portaudio", config.Audio.Backend)
	}
	if config.Audio.FrameMs != 20 {
		t.Errorf("frame_ms = %d, want 20", config.Audio.FrameMs)
	}
	if config.VAD.EnergyThreshold != 0.02 {
		t.Errorf("energy_threshold = %f, want 0.02", config.VAD.EnergyThreshold)
	}
	if config.Turn.OverlapPolicy != "buffer_latest" {
		t.Errorf("overlap_policy = %q, want buffer_latest", config.Turn.OverlapPolicy)
	}

	// Untouched fields keep their defaults.
	if config.VAD.DebounceFrames != 3 {
		t.Errorf("debounce_frames = %d, want default 3", config.VAD.DebounceFrames)
	}
	if config.SpeechToText.Provider != "deepgram" {
		t.Errorf("speech_to_text.provider = %q, want default deepgram", config.SpeechToText.Provider)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
audio:
  frame_duration_ms: 20
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	config := Default()
	config.Audio.Backend = "pulseaudio"
	config.VAD.Composition = "some"
	config.Turn.OverlapPolicy = "queue"

	err := config.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	for _, fragment := range []string{"audio.backend", "vad.composition", "turn.overlap_policy"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q does not mention %s", err, fragment)
		}
	}
}

func TestValidateRejectsUnsupportedSampleRate(t *testing.T) {
	config := Default()
	config.Audio.SampleRate = 44100

	if err := config.Validate(); err == nil {
		t.Fatalf("expected error for unsupported sample rate")
	}
}

func TestValidateRejectsInvertedBands(t *testing.T) {
	config := Default()
	config.VAD.ZCRMin = 0.6
	config.VAD.ZCRMax = 0.4

	if err := config.Validate(); err == nil {
		t.Fatalf("expected error for inverted zcr band")
	}
}

func TestDefaultIsValid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSchemaDescribesConfig(t *testing.T) {
	rendered, err := Schema()
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(rendered, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %s", rendered)
	}
	for _, section := range []string{"audio", "vad", "turn", "supervisor"} {
		if _, ok := properties[section]; !ok {
			t.Errorf("schema is missing section %q", section)
		}
	}
}
