package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aienv/internal/launcher"
	"aienv/pkg/environment"
)

type fakeBackend struct {
	port    int
	started int
	stopped []string
}

func (b *fakeBackend) Start(context.Context) (string, error) {
	b.started++
	return "c0ffee", nil
}

func (b *fakeBackend) Stop(_ context.Context, containerID string) error {
	b.stopped = append(b.stopped, containerID)
	return nil
}

func (b *fakeBackend) IsRunning(_ context.Context, containerID string) (bool, error) {
	return containerID == "c0ffee", nil
}

func (b *fakeBackend) HostPort() int {
	return b.port
}

type fakeCloser struct {
	closed bool
}

func (c *fakeCloser) Close() error {
	c.closed = true
	return nil
}

type fakeFactory struct {
	backend *fakeBackend
	closer  *fakeCloser
	err     error
	calls   int
}

func (f *fakeFactory) NewBackend(context.Context, *environment.Installation) (launcher.ContainerBackend, io.Closer, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.backend == nil {
		f.backend = &fakeBackend{port: 11500}
	}
	if f.closer == nil {
		f.closer = &fakeCloser{}
	}
	return f.backend, f.closer, nil
}

func TestLazyBackend_ConnectsOnFirstUse(t *testing.T) {
	factory := &fakeFactory{}
	lazy := newLazyBackend(factory, environment.NewInstallation(t.TempDir()), 11434)
	ctx := context.Background()

	assert.Equal(t, 11434, lazy.HostPort())
	assert.Zero(t, factory.calls)
	require.NoError(t, lazy.Close())

	id, err := lazy.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", id)
	assert.Equal(t, 11500, lazy.HostPort())

	running, err := lazy.IsRunning(ctx, id)
	require.NoError(t, err)
	assert.True(t, running)
	require.NoError(t, lazy.Stop(ctx, id))

	assert.Equal(t, 1, factory.calls)
	assert.Equal(t, []string{"c0ffee"}, factory.backend.stopped)

	require.NoError(t, lazy.Close())
	assert.True(t, factory.closer.closed)
}

func TestLazyBackend_FactoryErrorIsSticky(t *testing.T) {
	factory := &fakeFactory{err: errors.New("Cannot connect to the Docker daemon")}
	lazy := newLazyBackend(factory, environment.NewInstallation(t.TempDir()), 11434)
	ctx := context.Background()

	_, err := lazy.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Docker daemon")

	running, err := lazy.IsRunning(ctx, "c0ffee")
	assert.Error(t, err)
	assert.False(t, running)
	assert.Error(t, lazy.Stop(ctx, "c0ffee"))

	assert.Equal(t, 1, factory.calls)
	assert.Equal(t, 11434, lazy.HostPort())
	assert.NoError(t, lazy.Close())
}

func TestNewDockerFactory_UsesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Ollama.Port = 11999

	f := NewDockerFactory(cfg)

	assert.Equal(t, cfg.Container.Image, f.Image)
	assert.Equal(t, cfg.Container.Name, f.Name)
	assert.Equal(t, 11999, f.HostPort)
}
