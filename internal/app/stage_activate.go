package app

import (
	"context"
	"errors"

	"aienv/internal/activator"
)

// ActivateStage activates the configured sub-environment into the
// session runtime.
type ActivateStage struct {
	activator *activator.Activator
	envName   string
}

func NewActivateStage(a *activator.Activator, envName string) *ActivateStage {
	return &ActivateStage{activator: a, envName: envName}
}

func (s *ActivateStage) Name() string {
	return "activate"
}

func (s *ActivateStage) Execute(ctx context.Context, session *Session) error {
	if session.Installation == nil {
		return errors.New("activate stage requires a located installation")
	}

	result, err := s.activator.Activate(ctx, session.Installation, s.envName, session.Runtime)
	if err != nil {
		return err
	}
	session.Activation = result
	return nil
}
