package negotiator

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"

	"peerkey/native/internal/domain"
)

const candidateAttr = "candidate"

// mergeCandidates adds every candidate missing from desc to the media
// section it was gathered for. desc is returned unchanged when nothing is
// missing.
func mergeCandidates(desc domain.SessionDescription, candidates []domain.ICECandidate) (domain.SessionDescription, error) {
	if len(candidates) == 0 {
		return desc, nil
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return desc, fmt.Errorf("%w: parse local sdp: %v", domain.ErrDescriptionCreationFailed, err)
	}

	added := 0
	for _, c := range candidates {
		md := mediaFor(&parsed, c)
		if md == nil {
			continue
		}
		value := strings.TrimPrefix(strings.TrimSpace(c.Candidate), candidateAttr+":")
		if value == "" || hasCandidate(md, value) {
			continue
		}
		md.WithValueAttribute(candidateAttr, value)
		added++
	}

	if added == 0 {
		return desc, nil
	}

	out, err := parsed.Marshal()
	if err != nil {
		return desc, fmt.Errorf("%w: marshal local sdp: %v", domain.ErrDescriptionCreationFailed, err)
	}
	return domain.SessionDescription{Type: desc.Type, SDP: string(out)}, nil
}

// mediaFor picks the media section by mid, falling back to the m-line index.
func mediaFor(parsed *sdp.SessionDescription, c domain.ICECandidate) *sdp.MediaDescription {
	if c.SDPMid != "" {
		for _, md := range parsed.MediaDescriptions {
			if mid, ok := md.Attribute("mid"); ok && mid == c.SDPMid {
				return md
			}
		}
	}
	if c.SDPMLineIndex >= 0 && c.SDPMLineIndex < len(parsed.MediaDescriptions) {
		return parsed.MediaDescriptions[c.SDPMLineIndex]
	}
	return nil
}

func hasCandidate(md *sdp.MediaDescription, value string) bool {
	for _, a := range md.Attributes {
		if a.Key == candidateAttr && a.Value == value {
			return true
		}
	}
	return false
}

// countCandidates returns the number of candidate attributes in an SDP.
func countCandidates(raw string) int {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return 0
	}
	n := 0
	for _, md := range parsed.MediaDescriptions {
		for _, a := range md.Attributes {
			if a.Key == candidateAttr {
				n++
			}
		}
	}
	return n
}
