package app

import (
	"context"
)

// Stage is one step of the bootstrap sequence. Stages run in order and each
// one fills in more of the Session.
type Stage interface {
	Name() string
	Execute(ctx context.Context, session *Session) error
}
