package domain

import "errors"

// Negotiation errors. Steps wrap these with context; match with errors.Is.
var (
	// ErrNoConnection is returned when an action needs a connection handle
	// and the platform did not provide one.
	ErrNoConnection = errors.New("peerkey: no connection established")

	// ErrMediaUnavailable is returned when a capture device is denied or absent.
	ErrMediaUnavailable = errors.New("peerkey: media unavailable")

	// ErrMediaAcquisitionFailed is returned for any other capture failure.
	ErrMediaAcquisitionFailed = errors.New("peerkey: media acquisition failed")

	// ErrDescriptionCreationFailed is returned when an offer or answer cannot be created.
	ErrDescriptionCreationFailed = errors.New("peerkey: description creation failed")

	// ErrDescriptionApplyFailed is returned when a local or remote description is rejected.
	ErrDescriptionApplyFailed = errors.New("peerkey: description apply failed")

	// ErrEmptyInput is returned for blank signaling text. It is a user error.
	ErrEmptyInput = errors.New("peerkey: remote key is required")

	// ErrMalformedInput is returned when signaling text cannot be parsed.
	ErrMalformedInput = errors.New("peerkey: malformed key")

	// ErrGatheringTimeout is returned when ICE gathering does not complete in time.
	ErrGatheringTimeout = errors.New("peerkey: ice gathering timed out")

	// ErrRemoteAlreadyApplied is returned when a session already consumed a remote key.
	ErrRemoteAlreadyApplied = errors.New("peerkey: remote description already applied")

	// ErrInvalidTransition is returned when an event is not valid in the current state.
	ErrInvalidTransition = errors.New("peerkey: invalid state transition")

	// ErrSessionDiscarded is returned by steps that finish after their session was abandoned.
	ErrSessionDiscarded = errors.New("peerkey: session discarded")

	// ErrLinkFailed is the failure reason when the platform reports a failed link.
	ErrLinkFailed = errors.New("peerkey: link failed")
)
