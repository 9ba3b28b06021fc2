package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pccr10001/groupcall/internal/calling"
	"github.com/pccr10001/groupcall/internal/dialog"
	"github.com/pccr10001/groupcall/internal/miclevel"
	"github.com/pccr10001/groupcall/pkg/logger"
	"github.com/pion/webrtc/v4"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleSignalWS negotiates the browser microphone of a dialog.
func handleSignalWS(c *gin.Context, callMgr *calling.Manager, d *dialog.Dialog) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Errorf("upgrade websocket failed: %v", err)
		return
	}
	defer conn.Close()

	peer, err := callMgr.EnsurePeer(d.ID)
	if err != nil {
		_ = conn.WriteJSON(calling.SignalMessage{Type: "error", Text: err.Error()})
		return
	}
	browserMic := miclevel.PeerDevice(d.ID)

	pc := peer.PeerConnection()
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			// The meter may have been bound before the peer existed.
			if d.Info().Input.ID == browserMic.ID {
				_ = d.SetInput(browserMic)
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			_ = callMgr.ClosePeer(d.ID)
		}
	})

	// gorilla connections allow one concurrent writer.
	writes := make(chan calling.SignalMessage, 16)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case msg := <-writes:
				if err := conn.WriteJSON(msg); err != nil {
					logger.Log.Warnf("write signal message failed: %v", err)
				}
			case <-done:
				return
			}
		}
	}()
	send := func(msg calling.SignalMessage) {
		select {
		case writes <- msg:
		case <-done:
		}
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		send(calling.SignalMessage{Type: "candidate", Candidate: ptrICE(candidate.ToJSON())})
	})

	send(calling.SignalMessage{Type: "ready", Text: "server ready"})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		d.Touch()

		msg, err := calling.ParseSignalMessage(raw)
		if err != nil {
			send(calling.SignalMessage{Type: "error", Text: err.Error()})
			continue
		}

		switch msg.Type {
		case "offer":
			if msg.Offer == nil {
				send(calling.SignalMessage{Type: "error", Text: "offer is required"})
				continue
			}
			answer, err := answerOffer(pc, *msg.Offer)
			if err != nil {
				send(calling.SignalMessage{Type: "error", Text: err.Error()})
				continue
			}
			send(calling.SignalMessage{Type: "answer", Answer: answer})
		case "candidate":
			if msg.Candidate == nil {
				continue
			}
			if err := pc.AddICECandidate(*msg.Candidate); err != nil {
				send(calling.SignalMessage{Type: "error", Text: err.Error()})
			}
		default:
			send(calling.SignalMessage{Type: "error", Text: "unsupported signal type"})
		}
	}
}

func answerOffer(pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return calling.WaitForLocalDescription(pc, 10*time.Second)
}

func ptrICE(c webrtc.ICECandidateInit) *webrtc.ICECandidateInit {
	return &c
}
