package calling

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// MicPeer receives a browser's microphone over WebRTC and hands the
// decoded PCM to whatever sink is attached.
type MicPeer struct {
	id     string
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	sinkMu sync.RWMutex
	sink   func([]int16)
}

func NewMicPeer(id string, api *webrtc.API, cfg webrtc.Configuration, logger *zap.SugaredLogger) (*MicPeer, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, err
	}

	peer := &MicPeer{id: id, pc: pc, logger: logger}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		mime := track.Codec().RTPCodecCapability.MimeType
		peer.logger.Infof("[%s] remote audio track codec=%s", id, mime)
		for {
			pkt, _, readErr := track.ReadRTP()
			if readErr != nil {
				return
			}
			samples, decodeErr := decodePacket(mime, pkt)
			if decodeErr != nil {
				peer.logger.Debugf("[%s] decode remote payload failed: %v", id, decodeErr)
				continue
			}
			peer.deliver(samples)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		peer.logger.Debugf("[%s] peer connection state: %s", id, state.String())
	})

	return peer, nil
}

func (p *MicPeer) deliver(samples []int16) {
	p.sinkMu.RLock()
	sink := p.sink
	p.sinkMu.RUnlock()
	if sink != nil && len(samples) > 0 {
		sink(samples)
	}
}

// SetAudioSink replaces the PCM consumer. nil detaches it.
func (p *MicPeer) SetAudioSink(sink func([]int16)) {
	p.sinkMu.Lock()
	p.sink = sink
	p.sinkMu.Unlock()
}

func (p *MicPeer) Close() error {
	if p.pc == nil {
		return nil
	}
	return p.pc.Close()
}

func (p *MicPeer) PeerConnection() *webrtc.PeerConnection {
	return p.pc
}

func WaitForLocalDescription(pc *webrtc.PeerConnection, timeout time.Duration) (*webrtc.SessionDescription, error) {
	gathered := webrtc.GatheringCompletePromise(pc)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-gathered:
	case <-deadline.C:
		if desc := pc.LocalDescription(); desc != nil {
			return desc, nil
		}
		return nil, errors.New("wait local description timeout")
	}
	if desc := pc.LocalDescription(); desc != nil {
		return desc, nil
	}
	return nil, errors.New("no local description")
}
