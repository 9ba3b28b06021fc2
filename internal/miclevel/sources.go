package miclevel

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AudioTap delivers decoded PCM from a remote peer.
type AudioTap interface {
	SetAudioSink(sink func([]int16))
}

// PeerLookup finds the browser microphone tap of a dialog.
type PeerLookup interface {
	AudioTap(id string) (AudioTap, bool)
}

type SourceConfig struct {
	SampleRate      int
	FramesPerBuffer int
	// FileChunk is the playback granularity of file devices.
	FileChunk time.Duration
	Files     []FileDevice
}

// Sources opens capture sources by device id scheme: "file:<id>" for
// configured WAV files, "webrtc:<dialog>" for a browser microphone and
// anything else for a PortAudio input.
type Sources struct {
	cfg    SourceConfig
	peers  PeerLookup
	logger *zap.SugaredLogger
	files  map[string]FileDevice
}

func NewSources(cfg SourceConfig, peers PeerLookup, logger *zap.SugaredLogger) *Sources {
	if cfg.FileChunk <= 0 {
		cfg.FileChunk = 20 * time.Millisecond
	}
	files := make(map[string]FileDevice, len(cfg.Files))
	for _, f := range cfg.Files {
		files[f.ID] = f
	}
	return &Sources{cfg: cfg, peers: peers, logger: logger, files: files}
}

func (s *Sources) Open(dev Device, feed Feed) (Source, error) {
	if id, ok := trimScheme(dev.ID, filePrefix); ok {
		f, found := s.files[id]
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, dev.ID)
		}
		return openWAVSource(f.Path, s.cfg.FileChunk, feed)
	}
	if id, ok := trimScheme(dev.ID, peerPrefix); ok {
		if s.peers == nil {
			return nil, ErrNoPeer
		}
		tap, found := s.peers.AudioTap(id)
		if !found {
			return nil, ErrNoPeer
		}
		return openPeerSource(tap, feed), nil
	}
	return openPortAudioSource(dev, s.cfg, feed)
}

// Devices lists the hardware inputs followed by the configured files.
// A PortAudio failure is logged and only the files are returned.
func (s *Sources) Devices() []Device {
	devices, err := listPortAudioInputs()
	if err != nil {
		s.logger.Warnf("list hardware inputs failed: %v", err)
		devices = nil
	}
	for _, f := range s.cfg.Files {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		devices = append(devices, Device{ID: fileDeviceID(f.ID), Name: name})
	}
	return devices
}
