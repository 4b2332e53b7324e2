// Package app holds the application-wide connection flag and the
// controller that creates sessions.
package app

import (
	"context"
	"sync"

	"peerkey/native/internal/domain"
)

// State is the application-wide connection flag. Subscribers receive the
// latest value; intermediate values may be skipped.
type State struct {
	mu    sync.Mutex
	value domain.AppState
	subs  []chan domain.AppState
}

func NewState() *State {
	return &State{value: domain.AppStateStable}
}

func (s *State) Get() domain.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// SetAppState implements domain.AppStateSink.
func (s *State) SetAppState(state domain.AppState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = state
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

// Subscribe returns a channel carrying the current value and every later
// change.
func (s *State) Subscribe() <-chan domain.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan domain.AppState, 1)
	ch <- s.value
	s.subs = append(s.subs, ch)
	return ch
}

// Watch calls fn with the current value and every later change until ctx
// is done.
func (s *State) Watch(ctx context.Context, fn func(domain.AppState)) {
	ch := s.Subscribe()
	defer s.unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-ch:
			fn(v)
		}
	}
}

func (s *State) unsubscribe(ch <-chan domain.AppState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.subs {
		if c == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}
