package webrtc

import (
	"bytes"
	"io"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"

	"peerkey/native/internal/domain"
)

// scriptedTrack replays packets and then ends.
type scriptedTrack struct {
	kind    domain.MediaKind
	packets []*rtp.Packet
}

func (s *scriptedTrack) ID() string             { return "scripted-" + string(s.kind) }
func (s *scriptedTrack) StreamID() string       { return "scripted" }
func (s *scriptedTrack) Kind() domain.MediaKind { return s.kind }

func (s *scriptedTrack) ReadRTP() (*rtp.Packet, error) {
	if len(s.packets) == 0 {
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func packet(seq uint16, ts uint32, payload ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: ts, Marker: true},
		Payload: payload,
	}
}

func TestRemoteSinkWritesAnnexB(t *testing.T) {
	var video bytes.Buffer
	sink := NewRemoteSink(&video, nil, quietLogger())

	sink.AddRemoteTrack(&scriptedTrack{
		kind: domain.MediaKindVideo,
		packets: []*rtp.Packet{
			packet(1, 3000, 0x67, 0x42, 0xe0, 0x1f),
			packet(2, 3000, 0x68, 0xce, 0x06, 0xe2),
			packet(3, 3000, 0x65, 0x88, 0x84, 0x00),
		},
	})
	sink.Wait()

	assert.Equal(t, int64(3), sink.Packets(domain.MediaKindVideo))
	assert.True(t, bytes.Contains(video.Bytes(), []byte{0x00, 0x00, 0x00, 0x01, 0x67}))
	assert.True(t, bytes.Contains(video.Bytes(), []byte{0x00, 0x00, 0x00, 0x01, 0x65}))
	assert.Len(t, sink.Tracks(), 1)
}

func TestRemoteSinkWritesOgg(t *testing.T) {
	var audio bytes.Buffer
	sink := NewRemoteSink(nil, &audio, quietLogger())

	sink.AddRemoteTrack(&scriptedTrack{
		kind: domain.MediaKindAudio,
		packets: []*rtp.Packet{
			packet(1, 960, 0xfc, 0xff, 0xfe),
			packet(2, 1920, 0xfc, 0xff, 0xfe),
		},
	})
	sink.Wait()

	assert.Equal(t, int64(2), sink.Packets(domain.MediaKindAudio))
	assert.True(t, bytes.HasPrefix(audio.Bytes(), []byte("OggS")))
}

func TestRemoteSinkDrainsWithoutWriter(t *testing.T) {
	sink := NewRemoteSink(nil, nil, quietLogger())

	sink.AddRemoteTrack(&scriptedTrack{
		kind:    domain.MediaKindVideo,
		packets: []*rtp.Packet{packet(1, 0, 0x65), packet(2, 0, 0x65)},
	})
	sink.AddRemoteTrack(&scriptedTrack{
		kind:    domain.MediaKindAudio,
		packets: []*rtp.Packet{packet(1, 0, 0xfc)},
	})
	sink.Wait()

	assert.Equal(t, int64(2), sink.Packets(domain.MediaKindVideo))
	assert.Equal(t, int64(1), sink.Packets(domain.MediaKindAudio))
	assert.Len(t, sink.Tracks(), 2)
}

// closeCounter is an output that records Close calls.
type closeCounter struct {
	bytes.Buffer
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestRemoteSinkLeavesOutputOpen(t *testing.T) {
	video := &closeCounter{}
	audio := &closeCounter{}
	sink := NewRemoteSink(video, audio, quietLogger())

	sink.AddRemoteTrack(&scriptedTrack{
		kind:    domain.MediaKindVideo,
		packets: []*rtp.Packet{packet(1, 3000, 0x67, 0x42, 0xe0, 0x1f)},
	})
	sink.AddRemoteTrack(&scriptedTrack{
		kind:    domain.MediaKindAudio,
		packets: []*rtp.Packet{packet(1, 960, 0xfc, 0xff, 0xfe)},
	})
	sink.Wait()

	sink.AddRemoteTrack(&scriptedTrack{
		kind:    domain.MediaKindVideo,
		packets: []*rtp.Packet{
			packet(1, 6000, 0x67, 0x42, 0xe0, 0x1f),
			packet(2, 6000, 0x65, 0x88, 0x84, 0x00),
		},
	})
	sink.Wait()

	assert.Zero(t, video.closes)
	assert.Zero(t, audio.closes)
	assert.Equal(t, int64(3), sink.Packets(domain.MediaKindVideo))
	assert.Equal(t, 2, bytes.Count(video.Bytes(), []byte{0x00, 0x00, 0x00, 0x01, 0x67}))
	assert.True(t, bytes.Contains(video.Bytes(), []byte{0x00, 0x00, 0x00, 0x01, 0x65}))
	assert.NotZero(t, audio.Len())
	assert.Len(t, sink.Tracks(), 3)
}
