package domain

import "context"

// Connection is one peer connection handle owned by a single session.
type Connection interface {
	AddTrack(track LocalTrack) error
	// OnTrack registers the inbound track observer.
	OnTrack(fn func(RemoteTrack))
	// OnICECandidate registers the local candidate observer. A nil candidate
	// signals that gathering is complete.
	OnICECandidate(fn func(*ICECandidate))
	OnConnectionStateChange(fn func(ConnectionState))
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	SetRemoteDescription(desc SessionDescription) error
	// LocalDescription returns the current local description including
	// the candidates gathered so far, or nil.
	LocalDescription() *SessionDescription
	Close() error
}

// ConnectionFactory creates connection handles.
type ConnectionFactory interface {
	NewConnection() (Connection, error)
}

// MediaDevices requests local capture.
type MediaDevices interface {
	RequestMedia(ctx context.Context, option MediaOption) (*LocalMediaStream, error)
}

// RemoteStreamSink is the display surface owning the remote stream.
type RemoteStreamSink interface {
	AddRemoteTrack(track RemoteTrack)
}

// KeySurface is the UI side of the copy/paste exchange.
type KeySurface interface {
	ShowLocalKey(text string)
	ClearKeys()
	Notify(msg string)
}

// AppStateSink receives the application-wide connection flag.
type AppStateSink interface {
	SetAppState(state AppState)
}
