package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"peerkey/native/internal/domain"
)

func TestAppStateMessage(t *testing.T) {
	assert.Empty(t, appStateMessage(domain.AppStateStable, domain.AppStateStable))
	assert.Empty(t, appStateMessage(domain.AppStateConnected, domain.AppStateConnected))
	assert.Contains(t, appStateMessage(domain.AppStateStable, domain.AppStateConnected), "Call established")
	assert.Equal(t, "Call ended.", appStateMessage(domain.AppStateConnected, domain.AppStateStable))
}

func TestTerminalTracksAppState(t *testing.T) {
	term := &terminal{}
	term.appState(domain.AppStateConnected)
	assert.Equal(t, domain.AppStateConnected, term.app)
	term.appState(domain.AppStateStable)
	assert.Equal(t, domain.AppStateStable, term.app)
}
