// Package webrtc implements the domain connection and media ports on pion.
package webrtc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/transport/v3"
	pion "github.com/pion/webrtc/v4"

	"peerkey/native/internal/domain"
)

const (
	// controlLabel names the negotiated control channel. Both sides create it
	// with the same id, so it needs no in-band announcement.
	controlLabel = "peerkey"
	controlID    = 0

	videoPayloadType = 102
	audioPayloadType = 111
)

// PeerConfig configures every connection created by a Factory.
type PeerConfig struct {
	ICEServers    []domain.ICEServer
	LoggerFactory logging.LoggerFactory
	// Net replaces the OS network stack, e.g. with a vnet for tests.
	Net transport.Net
}

// Peer wraps a pion PeerConnection and its control DataChannel.
type Peer struct {
	id  string
	pc  *pion.PeerConnection
	dc  *pion.DataChannel
	log logging.LeveledLogger

	controlOnce  sync.Once
	controlReady chan struct{}
}

// NewPeer creates a PeerConnection with H264 and Opus registered and a
// negotiated control channel.
func NewPeer(cfg PeerConfig) (*Peer, error) {
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}

	m := &pion.MediaEngine{}
	if err := registerCodecs(m); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)

	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generatorFactory)

	pliFactory, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pliFactory)

	s := pion.SettingEngine{LoggerFactory: lf}
	s.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	if cfg.Net != nil {
		s.SetNet(cfg.Net)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(s),
	)

	var servers []pion.ICEServer
	for _, srv := range cfg.ICEServers {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{srv.URL},
			Username:   srv.Username,
			Credential: srv.Credential,
		})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	negotiated := true
	id := uint16(controlID)
	dc, err := pc.CreateDataChannel(controlLabel, &pion.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	p := &Peer{
		id:           uuid.NewString(),
		pc:           pc,
		dc:           dc,
		log:          lf.NewLogger("webrtc"),
		controlReady: make(chan struct{}),
	}

	dc.OnOpen(func() {
		p.log.Infof("control channel opened")
		p.controlOnce.Do(func() { close(p.controlReady) })
		p.sendHello()
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		p.log.Infof("control message: %s", string(msg.Data))
	})
	dc.OnClose(func() {
		p.log.Debugf("control channel closed")
	})

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Debugf("ICE connection state: %s", state)
	})

	return p, nil
}

func registerCodecs(m *pion.MediaEngine) error {
	feedback := []pion.RTCPFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
	}

	h264Codec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:     pion.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: feedback,
		},
		PayloadType: videoPayloadType,
	}
	if err := m.RegisterCodec(h264Codec, pion.RTPCodecTypeVideo); err != nil {
		return fmt.Errorf("register H264: %w", err)
	}

	opusCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: audioPayloadType,
	}
	if err := m.RegisterCodec(opusCodec, pion.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("register Opus: %w", err)
	}

	pcmuCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:  pion.MimeTypePCMU,
			ClockRate: 8000,
			Channels:  1,
		},
		PayloadType: 0,
	}
	if err := m.RegisterCodec(pcmuCodec, pion.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("register PCMU: %w", err)
	}
	return nil
}

// ID identifies this peer in control channel messages.
func (p *Peer) ID() string { return p.id }

// ControlReady is closed once the control channel is open.
func (p *Peer) ControlReady() <-chan struct{} { return p.controlReady }

// pionTrack is implemented by local tracks this package produces.
type pionTrack interface {
	TrackLocal() pion.TrackLocal
}

// AddTrack attaches a local track produced by Devices.
func (p *Peer) AddTrack(track domain.LocalTrack) error {
	t, ok := track.(pionTrack)
	if !ok {
		return fmt.Errorf("add %s track: unsupported track type %T", track.Kind(), track)
	}
	sender, err := p.pc.AddTrack(t.TrackLocal())
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}

	// RTCP must be read for the interceptors to see NACK and PLI.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// OnTrack registers fn for inbound tracks.
func (p *Peer) OnTrack(fn func(domain.RemoteTrack)) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := track.Codec()
		p.log.Infof("got track: kind=%s codec=%s pt=%d", track.Kind(), codec.MimeType, codec.PayloadType)
		fn(&remoteTrack{track: track})
	})
}

// OnICECandidate registers fn for local candidates. fn receives nil once
// gathering is complete.
func (p *Peer) OnICECandidate(fn func(*domain.ICECandidate)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			p.log.Debugf("ICE gathering complete")
			fn(nil)
			return
		}

		init := c.ToJSON()
		candidate := &domain.ICECandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			candidate.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			candidate.SDPMLineIndex = int(*init.SDPMLineIndex)
		}

		p.log.Debugf("local ICE candidate: %s", init.Candidate)
		fn(candidate)
	})
}

// OnConnectionStateChange registers fn for peer connection state changes.
func (p *Peer) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Infof("peer connection state: %s", state)
		fn(domain.ConnectionState(state.String()))
	})
}

func (p *Peer) CreateOffer() (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return fromPion(offer), nil
}

func (p *Peer) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return fromPion(answer), nil
}

func (p *Peer) SetLocalDescription(desc domain.SessionDescription) error {
	if err := p.pc.SetLocalDescription(toPion(desc)); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	p.log.Debugf("local %s set", desc.Type)
	return nil
}

func (p *Peer) SetRemoteDescription(desc domain.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(toPion(desc)); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.log.Debugf("remote %s set", desc.Type)
	return nil
}

// LocalDescription includes every candidate gathered so far.
func (p *Peer) LocalDescription() *domain.SessionDescription {
	desc := p.pc.LocalDescription()
	if desc == nil {
		return nil
	}
	d := fromPion(*desc)
	return &d
}

// helloMessage is sent over the control channel once it opens.
type helloMessage struct {
	Action    string `json:"action"`
	PeerID    string `json:"peerID"`
	TimeStamp string `json:"timeStamp"`
}

func (p *Peer) sendHello() {
	msg := helloMessage{
		Action:    "hello",
		PeerID:    p.id,
		TimeStamp: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}

	data, _ := json.Marshal(msg)
	p.log.Debugf("sending hello: %s", string(data))
	if err := p.dc.SendText(string(data)); err != nil {
		p.log.Warnf("send hello: %v", err)
	}
}

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	if p.dc != nil {
		_ = p.dc.Close()
	}
	if p.pc != nil {
		return p.pc.Close()
	}
	return nil
}

func toPion(desc domain.SessionDescription) pion.SessionDescription {
	return pion.SessionDescription{
		Type: pion.NewSDPType(string(desc.Type)),
		SDP:  desc.SDP,
	}
}

func fromPion(desc pion.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{
		Type: domain.SDPType(desc.Type.String()),
		SDP:  desc.SDP,
	}
}

// remoteTrack adapts a pion TrackRemote to the domain port.
type remoteTrack struct {
	track *pion.TrackRemote
}

func (t *remoteTrack) ID() string       { return t.track.ID() }
func (t *remoteTrack) StreamID() string { return t.track.StreamID() }

func (t *remoteTrack) Kind() domain.MediaKind {
	if t.track.Kind() == pion.RTPCodecTypeVideo {
		return domain.MediaKindVideo
	}
	return domain.MediaKindAudio
}

func (t *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	return pkt, err
}

// Factory creates Peers.
type Factory struct {
	Config PeerConfig
}

func (f *Factory) NewConnection() (domain.Connection, error) {
	p, err := NewPeer(f.Config)
	if err != nil {
		return nil, err
	}
	return p, nil
}
