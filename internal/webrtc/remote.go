package webrtc

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"peerkey/native/internal/domain"
)

// rtpWriter is implemented by the pion media writers.
type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// RemoteSink plays the remote stream out: H264 is written as Annex-B to
// Video and Opus as Ogg to Audio. A nil writer drains that kind.
type RemoteSink struct {
	Video io.Writer
	Audio io.Writer

	log logging.LeveledLogger

	mu      sync.Mutex
	tracks  []domain.RemoteTrack
	video   atomic.Int64
	audio   atomic.Int64
	readers sync.WaitGroup
}

func NewRemoteSink(video, audio io.Writer, lf logging.LoggerFactory) *RemoteSink {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &RemoteSink{
		Video: video,
		Audio: audio,
		log:   lf.NewLogger("media"),
	}
}

// AddRemoteTrack starts reading t until it ends.
func (s *RemoteSink) AddRemoteTrack(t domain.RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()

	w, err := s.writerFor(t.Kind())
	if err != nil {
		s.log.Warnf("remote %s track %s: %v, draining", t.Kind(), t.ID(), err)
		w = nil
	}

	s.readers.Add(1)
	go func() {
		defer s.readers.Done()
		s.read(t, w)
	}()
}

func (s *RemoteSink) read(t domain.RemoteTrack, w rtpWriter) {
	counter := &s.audio
	if t.Kind() == domain.MediaKindVideo {
		counter = &s.video
	}
	if w != nil {
		defer w.Close()
	}

	for {
		pkt, err := t.ReadRTP()
		if err != nil {
			s.log.Debugf("remote %s track %s ended: %v", t.Kind(), t.ID(), err)
			return
		}
		counter.Add(1)
		if w == nil {
			continue
		}
		if err := w.WriteRTP(pkt); err != nil {
			s.log.Warnf("remote %s track %s: write: %v", t.Kind(), t.ID(), err)
			w = nil
		}
	}
}

// writerFor hides Close from the pion writers: the outputs belong to the
// caller and outlive any single track.
func (s *RemoteSink) writerFor(kind domain.MediaKind) (rtpWriter, error) {
	switch {
	case kind == domain.MediaKindVideo && s.Video != nil:
		return h264writer.NewWith(struct{ io.Writer }{s.Video}), nil
	case kind == domain.MediaKindAudio && s.Audio != nil:
		return oggwriter.NewWith(struct{ io.Writer }{s.Audio}, 48000, 2)
	}
	return nil, nil
}

// Tracks returns the remote tracks seen so far.
func (s *RemoteSink) Tracks() []domain.RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RemoteTrack(nil), s.tracks...)
}

// Packets returns the number of RTP packets read per kind.
func (s *RemoteSink) Packets(kind domain.MediaKind) int64 {
	if kind == domain.MediaKindVideo {
		return s.video.Load()
	}
	return s.audio.Load()
}

// Wait blocks until every track reader has returned.
func (s *RemoteSink) Wait() {
	s.readers.Wait()
}
