// Command voicecore runs the voice interaction agent: it captures microphone
// audio, detects utterances, transcribes them, generates replies through the
// configured chat backend and speaks them back.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	agent "github.com/TreasureProject/voicecore/core"
	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/audio/miniaudio"
	"github.com/TreasureProject/voicecore/core/audio/portaudio"
	"github.com/TreasureProject/voicecore/core/responder/frens"
	"github.com/TreasureProject/voicecore/core/speechtotext"
	deepgramstt "github.com/TreasureProject/voicecore/core/speechtotext/deepgram"
	"github.com/TreasureProject/voicecore/core/speechtotext/whisper"
	"github.com/TreasureProject/voicecore/core/texttospeech"
	deepgramtts "github.com/TreasureProject/voicecore/core/texttospeech/deepgram"
	"github.com/TreasureProject/voicecore/core/vad"
	"github.com/TreasureProject/voicecore/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; defaults apply when omitted")
	printSchema := flag.Bool("print-schema", false, "print the config JSON schema and exit")
	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	withTUI := flag.Bool("tui", false, "run with the terminal dashboard")
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			fatal("failed to render config schema", err)
		}
		fmt.Println(string(schema))
		return
	}

	if *listDevices {
		devices, err := miniaudio.ListCaptureDevices()
		if err != nil {
			fatal("failed to enumerate capture devices", err)
		}
		for _, device := range devices {
			fmt.Printf("%3d  %s\n", device.Index, device.Name)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal("failed to load config", err)
		}
		cfg = *loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ui *dashboard
	var extra []agent.Option
	if *withTUI {
		ui = newDashboard(vadThresholds(cfg.VAD))
		extra = ui.agentOptions()
	}

	a, err := buildAgent(cfg, extra...)
	if err != nil {
		fatal("failed to assemble agent", err)
	}

	if ui != nil {
		err = ui.run(ctx, a)
	} else {
		err = a.Run(ctx)
	}
	if err != nil {
		fatal("agent stopped", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

// buildAgent maps the validated config onto the agent's functional options.
func buildAgent(cfg config.Config, extra ...agent.Option) (*agent.Agent, error) {
	opts := []agent.Option{
		agent.WithFrameDuration(cfg.Audio.FrameDuration()),
		agent.WithDetectorOptions(
			vad.WithThresholds(vadThresholds(cfg.VAD)),
			vad.WithDebounceFrames(cfg.VAD.DebounceFrames),
			vad.WithPreRoll(cfg.VAD.PreRoll()),
			vad.WithSilenceTimeout(cfg.VAD.SilenceTimeout()),
			vad.WithMaxUtterance(cfg.VAD.MaxUtterance()),
		),
		agent.WithOverlapPolicy(agent.OverlapPolicy(cfg.Turn.OverlapPolicy)),
		agent.WithCollaboratorTimeout(cfg.Turn.CollaboratorTimeout()),
		agent.WithMaxHistory(cfg.Turn.MaxHistory),
		agent.WithSupervisorOptions(
			agent.WithMaxRestarts(cfg.Supervisor.MaxRestarts),
			agent.WithRestartBackoff(cfg.Supervisor.RestartBackoff()),
			agent.WithStopTimeout(cfg.Supervisor.StopTimeout()),
		),
	}

	deviceOpts, err := deviceOptions(cfg.Audio)
	if err != nil {
		return nil, err
	}
	opts = append(opts, deviceOpts...)

	switch cfg.SpeechToText.Provider {
	case "deepgram":
		opts = append(opts, agent.WithTranscriber(
			deepgramstt.NewTranscriptionClient(transcriptionOptions(cfg.SpeechToText)...)))
	case "whisper":
		opts = append(opts, agent.WithTranscriber(
			whisper.NewClientWithOptions(transcriptionOptions(cfg.SpeechToText))))
	}

	if cfg.TextToSpeech.Provider == "deepgram" {
		synthesizer, err := deepgramtts.NewTextToSpeechClient([]texttospeech.TextToSpeechOption{
			texttospeech.WithVoice(cfg.TextToSpeech.Voice),
			texttospeech.WithEncodingInfo(audio.EncodingInfo{
				SampleRate: cfg.Audio.SampleRate,
				Format:     audio.EncodingLinear16,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up speech synthesis: %w", err)
		}
		opts = append(opts, agent.WithSynthesizer(synthesizer))
	}

	if cfg.Responder.BaseURL != "" {
		opts = append(opts, agent.WithResponder(frens.NewClient(cfg.Responder.BaseURL)))
	}

	return agent.New(append(opts, extra...)...), nil
}

func deviceOptions(cfg config.AudioConfig) ([]agent.Option, error) {
	switch cfg.Backend {
	case "miniaudio":
		client, err := miniaudio.NewClient(
			miniaudio.WithSampleRate(cfg.SampleRate),
			miniaudio.WithCaptureDevice(cfg.DeviceIndex),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to set up audio devices: %w", err)
		}
		return []agent.Option{agent.WithCaptureClient(client), agent.WithPlaybackClient(client)}, nil
	case "portaudio":
		if cfg.SampleRate != audio.DefaultSampleRate {
			return nil, fmt.Errorf("portaudio backend only supports %d Hz", audio.DefaultSampleRate)
		}
		samplesPerFrame := cfg.SampleRate * cfg.FrameMs / 1000
		client, err := portaudio.NewClient(samplesPerFrame)
		if err != nil {
			return nil, fmt.Errorf("failed to set up audio devices: %w", err)
		}
		return []agent.Option{agent.WithCaptureClient(client), agent.WithPlaybackClient(client)}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

func vadThresholds(cfg config.VADConfig) vad.Thresholds {
	return vad.Thresholds{
		Energy:       cfg.EnergyThreshold,
		ZCRBand:      vad.Band{Min: cfg.ZCRMin, Max: cfg.ZCRMax},
		SpectralBand: vad.Band{Min: cfg.CentroidMin, Max: cfg.CentroidMax},
		Composition:  vad.Composition(cfg.Composition),
	}
}

func transcriptionOptions(cfg config.SpeechToTextConfig) []speechtotext.TranscriptionOption {
	var opts []speechtotext.TranscriptionOption
	if cfg.Model != "" {
		opts = append(opts, speechtotext.WithModel(cfg.Model))
	}
	if cfg.Language != "" {
		opts = append(opts, speechtotext.WithLanguage(cfg.Language))
	}
	return opts
}
