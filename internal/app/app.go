package app

import (
	"context"
	"io"

	"authmsg/internal/services/orchestrator"
)

// App is the wired host with one messaging workflow.
type App struct {
	*Wire
	Workflow *orchestrator.Orchestrator
}

// New builds the dependency graph for cfg and a workflow on top of it.
func New(cfg Config, logOut io.Writer) (*App, error) {
	w, err := NewWire(cfg, logOut)
	if err != nil {
		return nil, err
	}
	return &App{
		Wire:     w,
		Workflow: orchestrator.New(cfg.OrchestratorConfig(), w.OrchestratorDeps()),
	}, nil
}

// Run executes the workflow once.
func (a *App) Run(ctx context.Context) (orchestrator.Report, error) {
	return a.Workflow.Run(ctx)
}
