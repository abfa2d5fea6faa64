package app

import (
	"context"
	"fmt"
	"log/slog"

	"aienv/internal/locator"
	"aienv/internal/ui"
)

// LocateStage finds the installation root.
type LocateStage struct {
	opts    locator.Options
	console *ui.Console
}

func NewLocateStage(opts locator.Options, console *ui.Console) *LocateStage {
	return &LocateStage{opts: opts, console: console}
}

func (s *LocateStage) Name() string {
	return "locate"
}

func (s *LocateStage) Execute(ctx context.Context, session *Session) error {
	inst, err := locator.Locate(s.opts)
	if err != nil {
		return err
	}

	session.Installation = inst
	s.console.PrintSuccess(fmt.Sprintf("AI Environment found at: %s", inst.Root))
	slog.Info("Installation located", "runId", session.RunID, "root", inst.Root, "kind", inst.Kind, "markers", inst.Markers)
	return nil
}
