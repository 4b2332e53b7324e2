package negotiator

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pion/rtp"

	"peerkey/native/internal/domain"
)

const fakeSDP = "v=0\r\n" +
	"o=- 3920185427 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0 1\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 102\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=rtpmap:102 H264/90000\r\n"

// fakeConnection records calls and reports candidates asynchronously once a
// local description is set.
type fakeConnection struct {
	mu          sync.Mutex
	calls       []string
	onCandidate func(*domain.ICECandidate)
	onTrack     func(domain.RemoteTrack)
	onState     func(domain.ConnectionState)
	local       *domain.SessionDescription
	remotes     []domain.SessionDescription
	tracks      []domain.LocalTrack
	closed      bool

	candidates []domain.ICECandidate
	// hold delays gathering until it is closed.
	hold          chan struct{}
	neverComplete bool
	createErr     error
	remoteErr     error
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		candidates: []domain.ICECandidate{
			{SDPMid: "0", SDPMLineIndex: 0, Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"},
			{SDPMid: "0", SDPMLineIndex: 0, Candidate: "candidate:2 1 udp 1694498815 203.0.113.7 5001 typ srflx raddr 10.0.0.1 rport 5000"},
		},
	}
}

func (f *fakeConnection) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeConnection) AddTrack(t domain.LocalTrack) error {
	f.record("AddTrack")
	f.mu.Lock()
	f.tracks = append(f.tracks, t)
	f.mu.Unlock()
	return nil
}

func (f *fakeConnection) OnTrack(fn func(domain.RemoteTrack)) {
	f.record("OnTrack")
	f.mu.Lock()
	f.onTrack = fn
	f.mu.Unlock()
}

func (f *fakeConnection) OnICECandidate(fn func(*domain.ICECandidate)) {
	f.record("OnICECandidate")
	f.mu.Lock()
	f.onCandidate = fn
	f.mu.Unlock()
}

func (f *fakeConnection) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	f.record("OnConnectionStateChange")
	f.mu.Lock()
	f.onState = fn
	f.mu.Unlock()
}

func (f *fakeConnection) CreateOffer() (domain.SessionDescription, error) {
	f.record("CreateOffer")
	if f.createErr != nil {
		return domain.SessionDescription{}, f.createErr
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: fakeSDP}, nil
}

func (f *fakeConnection) CreateAnswer() (domain.SessionDescription, error) {
	f.record("CreateAnswer")
	if f.createErr != nil {
		return domain.SessionDescription{}, f.createErr
	}
	if f.remoteCount() == 0 {
		return domain.SessionDescription{}, errors.New("no remote description")
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: fakeSDP}, nil
}

func (f *fakeConnection) SetLocalDescription(d domain.SessionDescription) error {
	f.record("SetLocalDescription")
	f.mu.Lock()
	f.local = &d
	fn := f.onCandidate
	candidates := f.candidates
	hold := f.hold
	never := f.neverComplete
	f.mu.Unlock()

	if fn == nil {
		return errors.New("no candidate observer registered")
	}
	go func() {
		if hold != nil {
			<-hold
		}
		for i := range candidates {
			c := candidates[i]
			fn(&c)
		}
		if !never {
			fn(nil)
		}
	}()
	return nil
}

func (f *fakeConnection) SetRemoteDescription(d domain.SessionDescription) error {
	f.record("SetRemoteDescription")
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.mu.Lock()
	f.remotes = append(f.remotes, d)
	f.mu.Unlock()
	return nil
}

func (f *fakeConnection) LocalDescription() *domain.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.local == nil {
		return nil
	}
	d := *f.local
	return &d
}

func (f *fakeConnection) Close() error {
	f.record("Close")
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConnection) index(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c == call {
			return i
		}
	}
	return -1
}

func (f *fakeConnection) called(call string) bool { return f.index(call) >= 0 }

func (f *fakeConnection) remoteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.remotes)
}

func (f *fakeConnection) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConnection) emitTrack(t domain.RemoteTrack) {
	f.mu.Lock()
	fn := f.onTrack
	f.mu.Unlock()
	fn(t)
}

func (f *fakeConnection) emitState(s domain.ConnectionState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	fn(s)
}

type fakeTrack struct {
	kind domain.MediaKind

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTrack) ID() string             { return string(t.kind) }
func (t *fakeTrack) Kind() domain.MediaKind { return t.kind }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeDevices struct {
	err error

	mu     sync.Mutex
	issued []*fakeTrack
}

func (d *fakeDevices) RequestMedia(_ context.Context, option domain.MediaOption) (*domain.LocalMediaStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	stream := &domain.LocalMediaStream{}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range option.Kinds() {
		t := &fakeTrack{kind: k}
		d.issued = append(d.issued, t)
		stream.Tracks = append(stream.Tracks, t)
	}
	return stream, nil
}

func (d *fakeDevices) tracks() []*fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTrack(nil), d.issued...)
}

type fakeRemoteTrack struct {
	kind domain.MediaKind
}

func (t *fakeRemoteTrack) ID() string                    { return "remote-" + string(t.kind) }
func (t *fakeRemoteTrack) StreamID() string              { return "remote" }
func (t *fakeRemoteTrack) Kind() domain.MediaKind        { return t.kind }
func (t *fakeRemoteTrack) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

type recordingSink struct {
	mu     sync.Mutex
	tracks []domain.RemoteTrack
}

func (s *recordingSink) AddRemoteTrack(t domain.RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

type recordingSurface struct {
	mu      sync.Mutex
	shown   []string
	cleared int
	notes   []string

	// entered and gate, when set, pause ShowLocalKey and ClearKeys.
	entered chan struct{}
	gate    chan struct{}
}

func (s *recordingSurface) pause() {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
}

func (s *recordingSurface) ShowLocalKey(text string) {
	s.pause()
	s.mu.Lock()
	s.shown = append(s.shown, text)
	s.mu.Unlock()
}

func (s *recordingSurface) ClearKeys() {
	s.pause()
	s.mu.Lock()
	s.cleared++
	s.mu.Unlock()
}

func (s *recordingSurface) Notify(msg string) {
	s.mu.Lock()
	s.notes = append(s.notes, msg)
	s.mu.Unlock()
}

func (s *recordingSurface) snapshot() (shown []string, cleared int, notes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.shown...), s.cleared, append([]string(nil), s.notes...)
}

type recordingApp struct {
	mu     sync.Mutex
	states []domain.AppState
}

func (a *recordingApp) SetAppState(state domain.AppState) {
	a.mu.Lock()
	a.states = append(a.states, state)
	a.mu.Unlock()
}

func (a *recordingApp) history() []domain.AppState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AppState(nil), a.states...)
}
