package miclevel

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

type portAudioSource struct {
	stream *portaudio.Stream
}

func openPortAudioSource(dev Device, cfg SourceConfig, feed Feed) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	info, err := findInput(dev.ID)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = 1
	if cfg.SampleRate > 0 {
		params.SampleRate = float64(cfg.SampleRate)
	}
	if cfg.FramesPerBuffer > 0 {
		params.FramesPerBuffer = cfg.FramesPerBuffer
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		feed(peakInt16(in))
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream on %q: %w", info.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start stream on %q: %w", info.Name, err)
	}
	return &portAudioSource{stream: stream}, nil
}

func (s *portAudioSource) Close() error {
	var closeErr error
	if err := s.stream.Stop(); err != nil {
		closeErr = err
	}
	if err := s.stream.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if err := portaudio.Terminate(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

func findInput(id string) (*portaudio.DeviceInfo, error) {
	if id == "" || id == DefaultDeviceID {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == id && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// listPortAudioInputs re-initializes PortAudio so that hot-plugged
// devices show up.
func listPortAudioInputs() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		defaultInput = nil
	}

	var result []Device
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:        d.Name,
			Name:      d.Name,
			IsDefault: defaultInput != nil && d.Name == defaultInput.Name,
		})
	}
	if len(result) == 0 {
		return nil, errors.New("no audio input devices")
	}
	return result, nil
}
