package main

import (
	"testing"

	"github.com/TreasureProject/voicecore/core/vad"
	"github.com/TreasureProject/voicecore/internal/config"
)

// headlessConfig strips every component that needs real devices or network
// credentials so buildAgent can be exercised in tests.
func headlessConfig() config.Config {
	cfg := config.Default()
	cfg.Audio.Backend = "none"
	cfg.SpeechToText.Provider = "none"
	cfg.TextToSpeech.Provider = "none"
	return cfg
}

func TestBuildAgentHeadless(t *testing.T) {
	a, err := buildAgent(headlessConfig())
	if err != nil {
		t.Fatalf("buildAgent failed: %v", err)
	}
	if a == nil {
		t.Fatalf("expected an agent")
	}
	defer a.Close()
}

func TestBuildAgentRejectsUnknownVoice(t *testing.T) {
	cfg := headlessConfig()
	cfg.TextToSpeech.Provider = "deepgram"
	cfg.TextToSpeech.Voice = "aura-2-nobody-en"

	if _, err := buildAgent(cfg); err == nil {
		t.Fatalf("expected error for unknown voice")
	}
}

func TestVADThresholdsMapping(t *testing.T) {
	cfg := config.Default().VAD
	cfg.EnergyThreshold = 0.05
	cfg.Composition = "all"

	thresholds := vadThresholds(cfg)
	if thresholds.Energy != 0.05 {
		t.Errorf("energy = %f, want 0.05", thresholds.Energy)
	}
	if thresholds.Composition != vad.ComposeAll {
		t.Errorf("composition = %q, want all", thresholds.Composition)
	}
	if thresholds.ZCRBand != (vad.Band{Min: 0.1, Max: 0.5}) {
		t.Errorf("unexpected zcr band %+v", thresholds.ZCRBand)
	}
}

func TestTranscriptionOptionsSkipEmptyModel(t *testing.T) {
	opts := transcriptionOptions(config.SpeechToTextConfig{Language: "en-US"})
	if len(opts) != 1 {
		t.Fatalf("expected only the language option, got %d options", len(opts))
	}
}
