package negotiator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerkey/native/internal/domain"
)

func TestMergeCandidates(t *testing.T) {
	offer := domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: fakeSDP}

	tests := []struct {
		name       string
		candidates []domain.ICECandidate
		want       int
	}{
		{"none", nil, 0},
		{"by mid", []domain.ICECandidate{
			{SDPMid: "1", Candidate: "candidate:7 1 udp 2130706431 10.0.0.2 6000 typ host"},
		}, 1},
		{"by index", []domain.ICECandidate{
			{SDPMLineIndex: 1, Candidate: "candidate:7 1 udp 2130706431 10.0.0.2 6000 typ host"},
		}, 1},
		{"duplicates collapse", []domain.ICECandidate{
			{SDPMid: "0", Candidate: "candidate:7 1 udp 2130706431 10.0.0.2 6000 typ host"},
			{SDPMid: "0", Candidate: "candidate:7 1 udp 2130706431 10.0.0.2 6000 typ host"},
		}, 1},
		{"unknown section dropped", []domain.ICECandidate{
			{SDPMid: "9", SDPMLineIndex: 9, Candidate: "candidate:7 1 udp 2130706431 10.0.0.2 6000 typ host"},
		}, 0},
		{"empty candidate dropped", []domain.ICECandidate{
			{SDPMid: "0", Candidate: "  "},
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeCandidates(offer, tt.candidates)
			require.NoError(t, err)
			assert.Equal(t, domain.SDPTypeOffer, got.Type)
			assert.Equal(t, tt.want, countCandidates(got.SDP))
		})
	}
}

func TestMergeCandidatesKeepsExisting(t *testing.T) {
	c := domain.ICECandidate{SDPMid: "0", Candidate: "candidate:7 1 udp 2130706431 10.0.0.2 6000 typ host"}
	once, err := mergeCandidates(domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: fakeSDP}, []domain.ICECandidate{c})
	require.NoError(t, err)

	twice, err := mergeCandidates(once, []domain.ICECandidate{c})
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestMergeCandidatesBadSDP(t *testing.T) {
	_, err := mergeCandidates(domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "nope"},
		[]domain.ICECandidate{{SDPMid: "0", Candidate: "candidate:1 1 udp 1 1.1.1.1 1 typ host"}})
	assert.ErrorIs(t, err, domain.ErrDescriptionCreationFailed)
}

func TestCountCandidates(t *testing.T) {
	assert.Equal(t, 0, countCandidates(fakeSDP))
	assert.Equal(t, 0, countCandidates("garbage"))
}
