package domain

import (
	"fmt"
	"strings"

	"github.com/pion/rtp"
)

// MediaKind is the modality of a single track.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// MediaOption selects which local streams a session requests.
type MediaOption int

const (
	MediaNone MediaOption = iota
	MediaAudio
	MediaVideo
	MediaAudioVideo
)

// MediaOptions lists every option in menu order.
var MediaOptions = []MediaOption{MediaAudioVideo, MediaAudio, MediaVideo, MediaNone}

func (o MediaOption) String() string {
	switch o {
	case MediaNone:
		return "none"
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaAudioVideo:
		return "audio+video"
	default:
		return fmt.Sprintf("MediaOption(%d)", int(o))
	}
}

// Kinds returns the track kinds the option asks for, audio first.
func (o MediaOption) Kinds() []MediaKind {
	switch o {
	case MediaAudio:
		return []MediaKind{MediaKindAudio}
	case MediaVideo:
		return []MediaKind{MediaKindVideo}
	case MediaAudioVideo:
		return []MediaKind{MediaKindAudio, MediaKindVideo}
	default:
		return nil
	}
}

// ParseMediaOption accepts the String form of an option. "av" and
// "audio,video" are accepted as aliases for audio+video.
func ParseMediaOption(s string) (MediaOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return MediaNone, nil
	case "audio":
		return MediaAudio, nil
	case "video":
		return MediaVideo, nil
	case "audio+video", "av", "audio,video":
		return MediaAudioVideo, nil
	default:
		return MediaNone, fmt.Errorf("unknown media option %q", s)
	}
}

// LocalTrack is an outgoing track produced by MediaDevices.
type LocalTrack interface {
	ID() string
	Kind() MediaKind
	Stop()
}

// LocalMediaStream is the set of local tracks owned by one session.
type LocalMediaStream struct {
	Tracks []LocalTrack
}

// Kinds returns the kind of every track in stream order.
func (s *LocalMediaStream) Kinds() []MediaKind {
	if s == nil {
		return nil
	}
	kinds := make([]MediaKind, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

// Stop stops every track. Safe on a nil stream.
func (s *LocalMediaStream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.Tracks {
		t.Stop()
	}
}

// RemoteTrack is an inbound track delivered by the connection.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() MediaKind
	ReadRTP() (*rtp.Packet, error)
}
