package app

import (
	"time"

	"github.com/google/uuid"

	"aienv/internal/activator"
	"aienv/internal/config"
	"aienv/pkg/environment"
)

// Session is the state produced by bootstrapping: where the installation
// is and the runtime it was activated into.
type Session struct {
	RunID        string
	Config       *config.Config
	Installation *environment.Installation
	// Runtime starts as a snapshot of the process environment and holds the
	// activated search path and variables once the activate stage ran.
	Runtime    *environment.Runtime
	Activation *activator.Result
	StartedAt  time.Time
}

func newSession(cfg *config.Config, environ []string) *Session {
	rt := environment.FromProcess()
	if environ != nil {
		rt = environment.FromEnviron(environ)
	}
	return &Session{
		RunID:     uuid.New().String(),
		Config:    cfg,
		Runtime:   rt,
		StartedAt: time.Now(),
	}
}

// Activated reports whether the activate stage completed.
func (s *Session) Activated() bool {
	return s.Activation != nil
}
