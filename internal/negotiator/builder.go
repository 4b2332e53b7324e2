package negotiator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"peerkey/native/internal/domain"
)

// DefaultGatherTimeout bounds the wait for ICE gathering to complete.
const DefaultGatherTimeout = 10 * time.Second

// Builder produces complete (non-trickle) local descriptions: it does not
// return until the connection has finished gathering candidates.
type Builder struct {
	timeout time.Duration
	log     logging.LeveledLogger
}

// NewBuilder creates a Builder. A zero timeout selects DefaultGatherTimeout.
func NewBuilder(timeout time.Duration, lf logging.LoggerFactory) *Builder {
	if timeout <= 0 {
		timeout = DefaultGatherTimeout
	}
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Builder{
		timeout: timeout,
		log:     lf.NewLogger("builder"),
	}
}

// BuildOffer creates an offer, sets it as the local description and waits
// for gathering to complete.
func (b *Builder) BuildOffer(ctx context.Context, conn domain.Connection) (domain.SessionDescription, error) {
	return b.build(ctx, conn, nil)
}

// BuildAnswer applies remote, creates an answer, sets it as the local
// description and waits for gathering to complete.
func (b *Builder) BuildAnswer(ctx context.Context, conn domain.Connection, remote domain.SessionDescription) (domain.SessionDescription, error) {
	return b.build(ctx, conn, &remote)
}

func (b *Builder) build(ctx context.Context, conn domain.Connection, remote *domain.SessionDescription) (domain.SessionDescription, error) {
	var desc domain.SessionDescription

	// Must be registered before any description exists, or early
	// candidates and the completion signal are lost.
	g := watchGathering(conn)
	defer g.stop()

	create := conn.CreateOffer
	if remote != nil {
		if err := conn.SetRemoteDescription(*remote); err != nil {
			return desc, fmt.Errorf("%w: set remote %s: %v", domain.ErrDescriptionApplyFailed, remote.Type, err)
		}
		b.log.Debugf("remote %s applied", remote.Type)
		create = conn.CreateAnswer
	}

	desc, err := create()
	if err != nil {
		return desc, fmt.Errorf("%w: %v", domain.ErrDescriptionCreationFailed, err)
	}

	if err := conn.SetLocalDescription(desc); err != nil {
		return desc, fmt.Errorf("%w: set local %s: %v", domain.ErrDescriptionApplyFailed, desc.Type, err)
	}
	b.log.Debugf("local %s set, gathering candidates", desc.Type)

	candidates, err := g.wait(ctx, b.timeout)
	if err != nil {
		return desc, err
	}

	final := desc
	if current := conn.LocalDescription(); current != nil {
		final = *current
	}

	final, err = mergeCandidates(final, candidates)
	if err != nil {
		return desc, err
	}

	b.log.Infof("local %s ready with %d candidate(s)", final.Type, countCandidates(final.SDP))
	return final, nil
}

// gatherer turns candidate callbacks into channel messages. Callbacks that
// arrive after stop are dropped instead of blocking the platform.
type gatherer struct {
	events chan *domain.ICECandidate
	done   chan struct{}
	once   sync.Once
}

func watchGathering(conn domain.Connection) *gatherer {
	g := &gatherer{
		events: make(chan *domain.ICECandidate, 32),
		done:   make(chan struct{}),
	}
	conn.OnICECandidate(func(c *domain.ICECandidate) {
		select {
		case g.events <- c:
		case <-g.done:
		}
	})
	return g
}

// wait collects candidates until the nil completion marker arrives.
func (g *gatherer) wait(ctx context.Context, timeout time.Duration) ([]domain.ICECandidate, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var candidates []domain.ICECandidate
	for {
		select {
		case c := <-g.events:
			if c == nil {
				return candidates, nil
			}
			candidates = append(candidates, *c)
		case <-timer.C:
			return candidates, fmt.Errorf("%w: no completion after %s (%d candidate(s) so far)",
				domain.ErrGatheringTimeout, timeout, len(candidates))
		case <-ctx.Done():
			return candidates, ctx.Err()
		}
	}
}

func (g *gatherer) stop() {
	g.once.Do(func() { close(g.done) })
}
