// Package negotiator drives one peer connection from creation to a
// connected link using manually exchanged keys.
package negotiator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"peerkey/native/internal/domain"
	"peerkey/native/internal/media"
	"peerkey/native/internal/session"
	"peerkey/native/internal/signal"
)

// Config bundles everything one session needs. It is passed by reference
// and must not be modified after the session starts.
type Config struct {
	// Connection is nil when the platform could not create one.
	Connection    domain.Connection
	Media         domain.MediaOption
	Devices       domain.MediaDevices
	Remote        domain.RemoteStreamSink
	Keys          domain.KeySurface
	App           domain.AppStateSink
	GatherTimeout time.Duration
	LoggerFactory logging.LoggerFactory
}

// Stats counts rejected user input and fatal errors.
type Stats struct {
	Validations int64
	Failures    int64
}

// Negotiator owns a single session. Its exported methods may be called from
// any goroutine; the state machine rejects overlapping attempts.
type Negotiator struct {
	id       string
	cfg      *Config
	log      logging.LeveledLogger
	machine  *session.Machine
	builder  *Builder
	acquirer *media.Acquirer

	mu       sync.Mutex
	localKey string
	local    *domain.LocalMediaStream

	// publishMu orders Discard against updates of the shared sinks.
	publishMu     sync.Mutex
	remoteApplied atomic.Bool
	discarded     atomic.Bool
	validations   atomic.Int64
	failures      atomic.Int64

	tracks chan domain.RemoteTrack
	links  chan domain.ConnectionState

	linkUp      chan struct{}
	linkOnce    sync.Once
	done        chan struct{}
	releaseOnce sync.Once
	watchOnce   sync.Once
}

// New creates a session in Idle.
func New(cfg *Config) *Negotiator {
	if cfg == nil {
		cfg = &Config{}
	}
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}

	n := &Negotiator{
		id:       uuid.NewString(),
		cfg:      cfg,
		log:      lf.NewLogger("negotiator"),
		builder:  NewBuilder(cfg.GatherTimeout, lf),
		acquirer: media.NewAcquirer(cfg.Devices, lf),
		tracks:   make(chan domain.RemoteTrack, 4),
		links:    make(chan domain.ConnectionState, 8),
		linkUp:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	n.machine = session.New(func(from, to domain.SessionState) {
		n.log.Infof("session %s: %s -> %s", n.short(), from, to)
	})
	return n
}

func (n *Negotiator) ID() string                   { return n.id }
func (n *Negotiator) State() domain.SessionState   { return n.machine.State() }
func (n *Negotiator) Role() domain.NegotiationRole { return n.machine.Role() }

// Err returns the failure reason of a Failed session.
func (n *Negotiator) Err() error { return n.machine.Reason() }

// LocalKey returns the offer or answer key produced by this session, or "".
func (n *Negotiator) LocalKey() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.localKey
}

func (n *Negotiator) Stats() Stats {
	return Stats{
		Validations: n.validations.Load(),
		Failures:    n.failures.Load(),
	}
}

// StartAsInitiator acquires media, builds a complete offer and publishes it
// as the local key. On success the session is LocalReady.
func (n *Negotiator) StartAsInitiator(ctx context.Context) error {
	conn, err := n.connection()
	if err != nil {
		return err
	}
	if err := n.machine.Start(domain.RoleInitiator); err != nil {
		return err
	}
	n.log.Infof("session %s: starting as initiator with %s", n.short(), n.cfg.Media)

	ctx, cancel := n.bind(ctx)
	defer cancel()

	if err := n.settle(n.prepare(ctx, conn)); err != nil {
		return err
	}

	offer, err := n.builder.BuildOffer(ctx, conn)
	if err := n.settle(err); err != nil {
		return err
	}

	key := signal.Encode(offer)
	ok := n.publish(func() {
		if err = n.machine.OfferReady(); err != nil {
			return
		}
		n.setLocalKey(key)
		if n.cfg.Keys != nil {
			n.cfg.Keys.ShowLocalKey(key)
		}
	})
	if !ok {
		return n.settle(nil)
	}
	if err != nil {
		return n.fail(err)
	}
	return nil
}

// Advance moves a LocalReady session on to waiting for the remote key.
func (n *Negotiator) Advance() error {
	return n.machine.Advance()
}

// AcceptAsResponder consumes the remote key. A fresh session answers the
// pasted offer and returns the answer key to hand back. An initiator session
// waiting for remote input applies the pasted answer and returns "".
//
// Blank input and unreadable keys leave the state untouched so the user can
// paste again. Everything after the remote key is accepted is fatal.
func (n *Negotiator) AcceptAsResponder(ctx context.Context, remoteText string) (string, error) {
	if strings.TrimSpace(remoteText) == "" {
		n.validations.Add(1)
		n.log.Warnf("session %s: remote key is required", n.short())
		n.notify("Remote key is required.")
		return "", domain.ErrEmptyInput
	}

	switch state := n.machine.State(); state {
	case domain.StateConnected:
		return "", domain.ErrRemoteAlreadyApplied
	case domain.StateIdle:
		if _, err := n.connection(); err != nil {
			return "", err
		}
		if err := n.machine.Start(domain.RoleResponder); err != nil {
			return "", err
		}
		n.log.Infof("session %s: starting as responder with %s", n.short(), n.cfg.Media)
	case domain.StateAwaitingRemoteInput:
	default:
		return "", fmt.Errorf("%w: remote key submitted in state %s", domain.ErrInvalidTransition, state)
	}

	role := n.machine.Role()
	remote, err := signal.Decode(remoteText)
	if err == nil {
		err = expectType(role, remote.Type)
	}
	if err != nil {
		n.failures.Add(1)
		n.log.Errorf("session %s: %v", n.short(), err)
		n.notify("Remote key could not be read.")
		return "", err
	}

	if err := n.machine.Submit(); err != nil {
		return "", err
	}
	if !n.remoteApplied.CompareAndSwap(false, true) {
		return "", n.fail(domain.ErrRemoteAlreadyApplied)
	}

	ctx, cancel := n.bind(ctx)
	defer cancel()

	conn := n.cfg.Connection
	var answerKey string

	switch role {
	case domain.RoleInitiator:
		if err := conn.SetRemoteDescription(remote); err != nil {
			err = fmt.Errorf("%w: set remote %s: %v", domain.ErrDescriptionApplyFailed, remote.Type, err)
			return "", n.settle(err)
		}
		if err := n.settle(nil); err != nil {
			return "", err
		}

	case domain.RoleResponder:
		if err := n.settle(n.prepare(ctx, conn)); err != nil {
			return "", err
		}
		answer, err := n.builder.BuildAnswer(ctx, conn, remote)
		if err := n.settle(err); err != nil {
			return "", err
		}
		answerKey = signal.Encode(answer)
	}

	ok := n.publish(func() {
		if err = n.machine.RemoteApplied(); err != nil {
			return
		}
		if answerKey != "" {
			n.setLocalKey(answerKey)
		}
		if n.cfg.Keys != nil {
			n.cfg.Keys.ClearKeys()
		}
		n.setApp(domain.AppStateConnected)
	})
	if !ok {
		return "", n.settle(nil)
	}
	if err != nil {
		return "", n.fail(err)
	}
	return answerKey, nil
}

// WaitConnected blocks until the platform reports the link connected, the
// session ends, or ctx is done.
func (n *Negotiator) WaitConnected(ctx context.Context) error {
	select {
	case <-n.linkUp:
		return nil
	case <-n.done:
		select {
		case <-n.linkUp:
			return nil
		default:
		}
		if err := n.machine.Reason(); err != nil {
			return err
		}
		return fmt.Errorf("%w: session %s closed", domain.ErrSessionDiscarded, n.short())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session is released by Close, Discard or a
// failure.
func (n *Negotiator) Done() <-chan struct{} { return n.done }

// Discard abandons the session. Steps still in flight drop their results
// instead of touching the state.
func (n *Negotiator) Discard() {
	n.publishMu.Lock()
	first := n.discarded.CompareAndSwap(false, true)
	n.publishMu.Unlock()
	if first {
		n.log.Infof("session %s: discarded in state %s", n.short(), n.machine.State())
	}
	n.release()
}

// Close ends the session and releases the connection and local media.
func (n *Negotiator) Close() {
	n.log.Debugf("session %s: closing", n.short())
	n.release()
}

// connection returns the session's handle or reports its absence without
// touching the session state.
func (n *Negotiator) connection() (domain.Connection, error) {
	if n.cfg.Connection == nil {
		n.failures.Add(1)
		n.log.Errorf("session %s: no connection established", n.short())
		n.setApp(domain.AppStateStable)
		return nil, domain.ErrNoConnection
	}
	return n.cfg.Connection, nil
}

// prepare acquires and attaches local media and registers the inbound
// observers.
func (n *Negotiator) prepare(ctx context.Context, conn domain.Connection) error {
	stream, err := n.acquirer.Acquire(ctx, n.cfg.Media)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.local = stream
	n.mu.Unlock()

	for _, t := range stream.Tracks {
		if err := conn.AddTrack(t); err != nil {
			return fmt.Errorf("%w: attach %s track: %v", domain.ErrMediaAcquisitionFailed, t.Kind(), err)
		}
	}

	conn.OnTrack(func(t domain.RemoteTrack) {
		select {
		case n.tracks <- t:
		case <-n.done:
		}
	})
	conn.OnConnectionStateChange(func(s domain.ConnectionState) {
		select {
		case n.links <- s:
		case <-n.done:
		}
	})

	n.watchOnce.Do(func() { go n.watch() })
	return nil
}

func (n *Negotiator) watch() {
	for {
		select {
		case t := <-n.tracks:
			n.log.Infof("session %s: remote %s track %s", n.short(), t.Kind(), t.ID())
			if n.cfg.Remote != nil {
				n.cfg.Remote.AddRemoteTrack(t)
			}
		case s := <-n.links:
			n.onLink(s)
		case <-n.done:
			return
		}
	}
}

func (n *Negotiator) onLink(s domain.ConnectionState) {
	n.log.Infof("session %s: link %s", n.short(), s)
	switch s {
	case domain.ConnectionStateConnected:
		n.linkOnce.Do(func() { close(n.linkUp) })
	case domain.ConnectionStateFailed:
		_ = n.fail(domain.ErrLinkFailed)
	}
}

// bind derives a context that is also cancelled when the session is
// released, so a discarded session does not sit out the gather timeout.
func (n *Negotiator) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-n.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// settle runs after every suspension point. Results of a discarded session
// are dropped; errors of a live one are fatal.
func (n *Negotiator) settle(err error) error {
	if n.discarded.Load() {
		n.release()
		return fmt.Errorf("%w: session %s", domain.ErrSessionDiscarded, n.short())
	}
	if err != nil {
		return n.fail(err)
	}
	return nil
}

// fail moves a live session to Failed. Only the first failure is counted.
func (n *Negotiator) fail(err error) error {
	var failed bool
	ok := n.publish(func() {
		if failed = n.machine.Fail(err); failed {
			n.setApp(domain.AppStateStable)
		}
	})
	if !ok {
		return n.settle(nil)
	}
	if failed {
		n.failures.Add(1)
		n.log.Errorf("session %s: %v", n.short(), err)
	} else {
		n.log.Debugf("session %s: already failed, ignoring %v", n.short(), err)
	}
	n.release()
	return err
}

// publish runs fn unless the session has been discarded. A Discard that
// returns first guarantees fn never runs; one that arrives during fn waits
// for it.
func (n *Negotiator) publish(fn func()) bool {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()
	if n.discarded.Load() {
		return false
	}
	fn()
	return true
}

func (n *Negotiator) release() {
	n.mu.Lock()
	local := n.local
	n.local = nil
	n.mu.Unlock()
	local.Stop()

	n.releaseOnce.Do(func() {
		close(n.done)
		if n.cfg.Connection == nil {
			return
		}
		if err := n.cfg.Connection.Close(); err != nil {
			n.log.Warnf("session %s: close connection: %v", n.short(), err)
		}
	})
}

func (n *Negotiator) setLocalKey(key string) {
	n.mu.Lock()
	n.localKey = key
	n.mu.Unlock()
}

func (n *Negotiator) setApp(state domain.AppState) {
	if n.cfg.App != nil {
		n.cfg.App.SetAppState(state)
	}
}

func (n *Negotiator) notify(msg string) {
	if n.cfg.Keys != nil {
		n.cfg.Keys.Notify(msg)
	}
}

func (n *Negotiator) short() string {
	return n.id[:8]
}

// expectType checks that the pasted key is the half this role consumes.
func expectType(role domain.NegotiationRole, got domain.SDPType) error {
	want := domain.SDPTypeOffer
	if role == domain.RoleInitiator {
		want = domain.SDPTypeAnswer
	}
	if got != want {
		return fmt.Errorf("%w: expected %s key, got %s", domain.ErrMalformedInput, want, got)
	}
	return nil
}
