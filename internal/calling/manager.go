package calling

import (
	"errors"
	"sync"

	"github.com/pccr10001/groupcall/internal/miclevel"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("webrtc not connected")

// Manager holds one browser microphone peer per settings dialog.
type Manager struct {
	logger *zap.SugaredLogger
	cfg    Config

	api       *webrtc.API
	webrtcCfg webrtc.Configuration

	mu    sync.Mutex
	peers map[string]*MicPeer
}

func NewManager(cfg Config, logger *zap.SugaredLogger) (*Manager, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000, Channels: 1},
		PayloadType:        8,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	setting := webrtc.SettingEngine{}
	if cfg.UDPPortMin > 0 || cfg.UDPPortMax > 0 {
		if err := setting.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(media), webrtc.WithSettingEngine(setting))

	iceServers := make([]webrtc.ICEServer, 0, 1)
	if len(cfg.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}

	return &Manager{
		logger:    logger,
		cfg:       cfg,
		api:       api,
		webrtcCfg: webrtc.Configuration{ICEServers: iceServers},
		peers:     map[string]*MicPeer{},
	}, nil
}

// EnsurePeer returns the dialog's peer, creating it on first use.
func (m *Manager) EnsurePeer(dialogID string) (*MicPeer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.peers[dialogID]; ok {
		return p, nil
	}
	peer, err := NewMicPeer(dialogID, m.api, m.webrtcCfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.peers[dialogID] = peer
	return peer, nil
}

func (m *Manager) Peer(dialogID string) *MicPeer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[dialogID]
}

// AudioTap exposes the dialog's peer to the level meter.
func (m *Manager) AudioTap(dialogID string) (miclevel.AudioTap, bool) {
	p := m.Peer(dialogID)
	if p == nil {
		return nil, false
	}
	return p, true
}

func (m *Manager) ClosePeer(dialogID string) error {
	m.mu.Lock()
	p := m.peers[dialogID]
	delete(m.peers, dialogID)
	m.mu.Unlock()

	if p == nil {
		return nil
	}
	p.SetAudioSink(nil)
	return p.Close()
}

func (m *Manager) CloseAll() error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.peers))
	for k := range m.peers {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	var closeErr error
	for _, k := range keys {
		if err := m.ClosePeer(k); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

func (m *Manager) IsConnected(dialogID string) bool {
	p := m.Peer(dialogID)
	if p == nil || p.PeerConnection() == nil {
		return false
	}
	return p.PeerConnection().ConnectionState() == webrtc.PeerConnectionStateConnected
}

func (m *Manager) RequireConnected(dialogID string) error {
	if !m.IsConnected(dialogID) {
		return ErrNotConnected
	}
	return nil
}
