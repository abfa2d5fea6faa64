package container

import (
	"context"
)

// RunOptions defines the parameters for starting a long-running container.
type RunOptions struct {
	Name         string
	Image        string
	Command      []string
	VolumeMounts map[string]string
	EnvVars      map[string]string
	// Ports maps host ports to container ports; bound on 127.0.0.1.
	Ports map[int]int
}

// ContainerRuntime defines the contract for container operations.
type ContainerRuntime interface {
	PullImage(ctx context.Context, image string) error
	Start(ctx context.Context, opts RunOptions) (string, error)
	Stop(ctx context.Context, containerID string) error
	IsRunning(ctx context.Context, containerID string) (bool, error)
}
