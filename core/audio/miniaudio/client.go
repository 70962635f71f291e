// Package miniaudio provides capture and playback clients backed by the
// miniaudio library, used as the default device layer on desktop builds.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/TreasureProject/voicecore/core/audio"
)

type clientOptions struct {
	sampleRate         int
	captureDeviceIndex int
}

type Option func(*clientOptions)

// WithSampleRate overrides the capture and playback sample rate.
func WithSampleRate(sampleRate int) Option {
	return func(o *clientOptions) {
		if sampleRate > 0 {
			o.sampleRate = sampleRate
		}
	}
}

// WithCaptureDevice selects the capture device by enumeration index instead
// of the system default.
func WithCaptureDevice(index int) Option {
	return func(o *clientOptions) { o.captureDeviceIndex = index }
}

// Client owns one capture and one playback device on a shared audio context.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	options      clientOptions
	closeOnce    sync.Once

	playbackClient
	captureClient
}

func NewClient(opts ...Option) (*Client, error) {
	options := clientOptions{
		sampleRate:         audio.DefaultSampleRate,
		captureDeviceIndex: -1,
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{audioContext: audioCtx, options: options}

	if err := client.captureClient.Init(audioCtx, options); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	if err := client.playbackClient.Init(audioCtx, options); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return &client, nil
}

// Stream captures microphone audio into onAudio until ctx ends.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Start(onAudio); err != nil {
		return err
	}

	<-ctx.Done()
	return c.captureClient.Stop()
}

// Close releases the devices and the audio context. Safe to call more than
// once; the context must only be uninitialized a single time.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.captureClient.Uninit()
		_ = c.playbackClient.Uninit()
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.options.sampleRate,
		Format:     audio.EncodingLinear16,
	}
}

// DeviceInfo describes one enumerated capture device.
type DeviceInfo struct {
	Index int
	Name  string
}

// ListCaptureDevices enumerates the capture devices currently visible to the
// audio backend. Indexes are valid inputs to WithCaptureDevice until devices
// are plugged or unplugged.
func ListCaptureDevices() ([]DeviceInfo, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = audioCtx.Uninit()
		audioCtx.Free()
	}()

	devices, err := audioCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for i, device := range devices {
		infos = append(infos, DeviceInfo{Index: i, Name: device.Name()})
	}
	return infos, nil
}
