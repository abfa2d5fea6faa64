package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"aienv/internal/config"
	"aienv/internal/container"
	"aienv/internal/launcher"
	"aienv/pkg/environment"
)

// ContainerFactory creates the container backend used by `launch --container`.
// The returned Closer releases the runtime client.
type ContainerFactory interface {
	NewBackend(ctx context.Context, inst *environment.Installation) (launcher.ContainerBackend, io.Closer, error)
}

// DockerFactory runs the Ollama server image on the local Docker daemon,
// keeping models under <root>/Ollama/models.
type DockerFactory struct {
	Image    string
	Name     string
	HostPort int
}

func NewDockerFactory(cfg *config.Config) *DockerFactory {
	return &DockerFactory{
		Image:    cfg.Container.Image,
		Name:     cfg.Container.Name,
		HostPort: cfg.Ollama.Port,
	}
}

func (f *DockerFactory) NewBackend(ctx context.Context, inst *environment.Installation) (launcher.ContainerBackend, io.Closer, error) {
	dockerRuntime, err := container.NewDockerRuntime(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Docker runtime: %w", err)
	}
	modelsDir := filepath.Join(inst.OllamaDir(), "models")
	return container.NewOllamaServer(dockerRuntime, f.Image, f.Name, f.HostPort, modelsDir), dockerRuntime, nil
}

// lazyBackend defers connecting to the container runtime until a container
// operation is needed, so commands that never touch containers work without
// a running daemon.
type lazyBackend struct {
	factory ContainerFactory
	inst    *environment.Installation
	port    int

	once    sync.Once
	backend launcher.ContainerBackend
	closer  io.Closer
	err     error
}

func newLazyBackend(factory ContainerFactory, inst *environment.Installation, port int) *lazyBackend {
	return &lazyBackend{factory: factory, inst: inst, port: port}
}

func (l *lazyBackend) get(ctx context.Context) (launcher.ContainerBackend, error) {
	l.once.Do(func() {
		l.backend, l.closer, l.err = l.factory.NewBackend(ctx, l.inst)
	})
	return l.backend, l.err
}

func (l *lazyBackend) Start(ctx context.Context) (string, error) {
	b, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return b.Start(ctx)
}

func (l *lazyBackend) Stop(ctx context.Context, containerID string) error {
	b, err := l.get(ctx)
	if err != nil {
		return err
	}
	return b.Stop(ctx, containerID)
}

func (l *lazyBackend) IsRunning(ctx context.Context, containerID string) (bool, error) {
	b, err := l.get(ctx)
	if err != nil {
		return false, err
	}
	return b.IsRunning(ctx, containerID)
}

func (l *lazyBackend) HostPort() int {
	if l.backend != nil {
		return l.backend.HostPort()
	}
	return l.port
}

func (l *lazyBackend) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
