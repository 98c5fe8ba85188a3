package call

import (
	"encoding/json"
	"fmt"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// PionMedia is acquired local media expressed as Pion local tracks. The
// stop callback must release the underlying devices; it is invoked at most
// once.
type PionMedia struct {
	tracks  []webrtc.TrackLocal
	stop    func()
	stopped bool
}

func NewPionMedia(tracks []webrtc.TrackLocal, stop func()) *PionMedia {
	return &PionMedia{tracks: tracks, stop: stop}
}

func (m *PionMedia) Stop() {
	if m.stopped {
		return
	}
	m.stopped = true
	if m.stop != nil {
		m.stop()
	}
}

// PionPipeline drives a Pion RTCPeerConnection behind the Pipeline
// contract. Negotiation uses trickle ICE: descriptions go out immediately
// and candidates follow as the agent discovers them.
type PionPipeline struct {
	pc  *webrtc.PeerConnection
	log logging.LeveledLogger
}

// NewPionFactory returns a PipelineFactory for the given STUN servers.
func NewPionFactory(stunServers []string) PipelineFactory {
	loggerFactory := logging.NewDefaultLoggerFactory()
	return func(events PipelineEvents) (Pipeline, error) {
		return newPionPipeline(stunServers, loggerFactory, events)
	}
}

func newPionPipeline(stunServers []string, loggerFactory *logging.DefaultLoggerFactory, events PipelineEvents) (*PionPipeline, error) {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = loggerFactory
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &PionPipeline{pc: pc, log: loggerFactory.NewLogger("call")}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering; nothing to signal for it.
		if c == nil || events.OnLocalCandidate == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.log.Errorf("marshal candidate: %v", err)
			return
		}
		events.OnLocalCandidate(data)
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		p.log.Infof("transport state: %s", st)
		if events.OnTransportStateChanged != nil {
			events.OnTransportStateChanged(mapTransportState(st))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if events.OnRemoteTrack != nil {
			events.OnRemoteTrack(RemoteTrack{ID: track.ID(), Kind: track.Kind().String()})
		}
	})

	return p, nil
}

// AddLocalMedia attaches acquired tracks. Media with no tracks (headless
// clients) still negotiates valid audio/video m-lines via recvonly
// transceivers.
func (p *PionPipeline) AddLocalMedia(media LocalMedia) error {
	pm, ok := media.(*PionMedia)
	if !ok || len(pm.tracks) == 0 {
		return p.addRecvOnlyTransceivers()
	}
	for _, track := range pm.tracks {
		if _, err := p.pc.AddTrack(track); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	return nil
}

func (p *PionPipeline) addRecvOnlyTransceivers() error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

func (p *PionPipeline) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

func (p *PionPipeline) CreateAnswer(remoteOffer string) (string, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  remoteOffer,
	}); err != nil {
		return "", fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

func (p *PionPipeline) SetRemoteDescription(answerSDP string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (p *PionPipeline) AddICECandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

func (p *PionPipeline) TransportState() TransportState {
	return mapTransportState(p.pc.ConnectionState())
}

func (p *PionPipeline) Close() error {
	return p.pc.Close()
}

func mapTransportState(st webrtc.PeerConnectionState) TransportState {
	switch st {
	case webrtc.PeerConnectionStateNew:
		return TransportNew
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return TransportClosed
	}
	return TransportNew
}
