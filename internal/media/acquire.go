// Package media requests local capture for a negotiation session and checks
// that the platform returned exactly what was asked for.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/logging"

	"peerkey/native/internal/domain"
)

// Acquirer wraps the platform's MediaDevices.
type Acquirer struct {
	devices domain.MediaDevices
	log     logging.LeveledLogger
}

// NewAcquirer creates an Acquirer. devices may be nil, in which case every
// option other than MediaNone is unavailable.
func NewAcquirer(devices domain.MediaDevices, lf logging.LoggerFactory) *Acquirer {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Acquirer{
		devices: devices,
		log:     lf.NewLogger("media"),
	}
}

// Acquire returns a stream whose tracks match option exactly. MediaNone
// yields an empty stream and never touches the devices.
func (a *Acquirer) Acquire(ctx context.Context, option domain.MediaOption) (*domain.LocalMediaStream, error) {
	want := option.Kinds()
	if len(want) == 0 {
		a.log.Debugf("media option %s requests no tracks", option)
		return &domain.LocalMediaStream{}, nil
	}

	if a.devices == nil {
		return nil, fmt.Errorf("%w: no media devices configured", domain.ErrMediaUnavailable)
	}

	a.log.Infof("requesting %s", option)
	stream, err := a.devices.RequestMedia(ctx, option)
	if err != nil {
		if errors.Is(err, domain.ErrMediaUnavailable) || errors.Is(err, domain.ErrMediaAcquisitionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaAcquisitionFailed, err)
	}

	got := stream.Kinds()
	if !sameKinds(got, want) {
		stream.Stop()
		return nil, fmt.Errorf("%w: got tracks %v, want %v", domain.ErrMediaAcquisitionFailed, got, want)
	}

	a.log.Infof("acquired %d local track(s)", len(got))
	return stream, nil
}

// sameKinds compares the two kind lists as multisets.
func sameKinds(got, want []domain.MediaKind) bool {
	if len(got) != len(want) {
		return false
	}
	counts := make(map[domain.MediaKind]int, len(want))
	for _, k := range want {
		counts[k]++
	}
	for _, k := range got {
		counts[k]--
		if counts[k] < 0 {
			return false
		}
	}
	return true
}
