package app

import (
	"sync"

	"github.com/pion/logging"

	"peerkey/native/internal/domain"
	"peerkey/native/internal/negotiator"
)

// Controller creates one session at a time. Starting a new session
// discards the previous one.
type Controller struct {
	platform domain.ConnectionFactory
	base     negotiator.Config
	log      logging.LeveledLogger

	mu      sync.Mutex
	current *negotiator.Negotiator
}

// NewController creates a Controller. base is copied into every session
// with a fresh connection and the chosen media option.
func NewController(platform domain.ConnectionFactory, base negotiator.Config) *Controller {
	lf := base.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
		base.LoggerFactory = lf
	}
	return &Controller{
		platform: platform,
		base:     base,
		log:      lf.NewLogger("app"),
	}
}

// NewSession discards the current session and returns a fresh one in Idle.
// When the platform cannot create a connection the session has none and
// its actions report domain.ErrNoConnection.
func (c *Controller) NewSession(option domain.MediaOption) *negotiator.Negotiator {
	cfg := c.base
	cfg.Media = option
	cfg.Connection = nil

	if c.platform != nil {
		conn, err := c.platform.NewConnection()
		if err != nil {
			c.log.Errorf("create connection: %v", err)
		} else {
			cfg.Connection = conn
		}
	}

	n := negotiator.New(&cfg)

	c.mu.Lock()
	prev := c.current
	c.current = n
	c.mu.Unlock()

	if prev != nil {
		prev.Discard()
	}
	c.log.Infof("new session %s with %s", n.ID(), option)
	return n
}

// Current returns the live session, or nil.
func (c *Controller) Current() *negotiator.Negotiator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close ends the live session.
func (c *Controller) Close() {
	c.mu.Lock()
	n := c.current
	c.current = nil
	c.mu.Unlock()

	if n != nil {
		n.Close()
	}
}
