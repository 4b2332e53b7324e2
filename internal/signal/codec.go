// Package signal converts session descriptions to and from the opaque text
// keys that users copy between peers.
package signal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"

	"peerkey/native/internal/domain"
)

// Encode renders desc as a single-line key: base64 of the JSON payload.
func Encode(desc domain.SessionDescription) string {
	payload, _ := json.Marshal(desc)
	return base64.StdEncoding.EncodeToString(payload)
}

// Decode parses a key produced by Encode. Surrounding whitespace is ignored,
// and line breaks inserted by terminals or chat clients are removed. Payloads
// that Encode would not produce, such as reordered, recased or extra fields,
// are rejected so that every accepted key re-encodes to itself.
func Decode(text string) (domain.SessionDescription, error) {
	var desc domain.SessionDescription

	compact := strings.Join(strings.Fields(text), "")
	if compact == "" {
		return desc, domain.ErrEmptyInput
	}

	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return desc, fmt.Errorf("%w: decode base64: %v", domain.ErrMalformedInput, err)
	}

	var parsed domain.SessionDescription
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return desc, fmt.Errorf("%w: unmarshal payload: %v", domain.ErrMalformedInput, err)
	}

	switch parsed.Type {
	case domain.SDPTypeOffer, domain.SDPTypeAnswer:
	default:
		return desc, fmt.Errorf("%w: unknown description type %q", domain.ErrMalformedInput, parsed.Type)
	}

	if strings.TrimSpace(parsed.SDP) == "" {
		return desc, fmt.Errorf("%w: empty sdp", domain.ErrMalformedInput)
	}

	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(parsed.SDP)); err != nil {
		return desc, fmt.Errorf("%w: parse sdp: %v", domain.ErrMalformedInput, err)
	}

	if Encode(parsed) != compact {
		return desc, fmt.Errorf("%w: non-canonical payload", domain.ErrMalformedInput)
	}

	return parsed, nil
}
