package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/pion/logging"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"peerkey/native/internal/domain"
)

const (
	streamID = "peerkey"

	h264FrameDuration = time.Millisecond * 33
	oggPageDuration   = time.Millisecond * 20
)

// Devices stands in for capture hardware: video is read from an Annex-B
// H264 file and audio from an Ogg Opus file. An empty path yields a track
// that negotiates but never sends.
type Devices struct {
	VideoSource   string
	AudioSource   string
	LoggerFactory logging.LoggerFactory
}

// RequestMedia opens a track per requested kind, audio first.
func (d *Devices) RequestMedia(ctx context.Context, option domain.MediaOption) (*domain.LocalMediaStream, error) {
	lf := d.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	log := lf.NewLogger("media")

	stream := &domain.LocalMediaStream{}
	for _, kind := range option.Kinds() {
		if err := ctx.Err(); err != nil {
			stream.Stop()
			return nil, err
		}
		track, err := d.open(kind, log)
		if err != nil {
			stream.Stop()
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, track)
	}
	return stream, nil
}

func (d *Devices) open(kind domain.MediaKind, log logging.LeveledLogger) (*sampleTrack, error) {
	var (
		capability pion.RTPCodecCapability
		source     string
		pump       func(io.Reader, *sampleTrack) error
	)
	switch kind {
	case domain.MediaKindVideo:
		capability = pion.RTPCodecCapability{MimeType: pion.MimeTypeH264, ClockRate: 90000}
		source = d.VideoSource
		pump = pumpH264
	case domain.MediaKindAudio:
		capability = pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2}
		source = d.AudioSource
		pump = pumpOgg
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrMediaAcquisitionFailed, kind)
	}

	local, err := pion.NewTrackLocalStaticSample(capability, string(kind), streamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s track: %v", domain.ErrMediaAcquisitionFailed, kind, err)
	}
	t := &sampleTrack{
		local: local,
		kind:  kind,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	if source == "" {
		close(t.done)
		return t, nil
	}

	f, err := os.Open(source)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return nil, fmt.Errorf("%w: %s source %s: %v", domain.ErrMediaUnavailable, kind, source, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s source %s: %v", domain.ErrMediaAcquisitionFailed, kind, source, err)
	}

	go func() {
		defer close(t.done)
		defer f.Close()
		if err := pump(f, t); err != nil && !errors.Is(err, io.EOF) {
			log.Warnf("%s source %s: %v", kind, source, err)
			return
		}
		log.Debugf("%s source %s finished", kind, source)
	}()
	return t, nil
}

// sampleTrack is a local track fed from a file. Stop ends the pump.
type sampleTrack struct {
	local *pion.TrackLocalStaticSample
	kind  domain.MediaKind

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (t *sampleTrack) ID() string                  { return t.local.ID() }
func (t *sampleTrack) Kind() domain.MediaKind      { return t.kind }
func (t *sampleTrack) TrackLocal() pion.TrackLocal { return t.local }

func (t *sampleTrack) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

func (t *sampleTrack) write(s media.Sample) error {
	return t.local.WriteSample(s)
}

// pumpH264 sends one NAL per tick until EOF or Stop.
func pumpH264(r io.Reader, t *sampleTrack) error {
	reader, err := h264reader.NewReader(r)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(h264FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return nil
		case <-ticker.C:
		}

		nal, err := reader.NextNAL()
		if err != nil {
			return err
		}
		if err := t.write(media.Sample{Data: nal.Data, Duration: h264FrameDuration}); err != nil {
			return err
		}
	}
}

// pumpOgg sends one Ogg page per tick until EOF or Stop.
func pumpOgg(r io.Reader, t *sampleTrack) error {
	reader, _, err := oggreader.NewWith(r)
	if err != nil {
		return err
	}

	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return nil
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if err != nil {
			return err
		}

		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration((samples/48000)*1000) * time.Millisecond
		if err := t.write(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}
