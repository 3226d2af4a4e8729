package version

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/stevedore-sh/stevedore/pkg/logger"
)

const composeServiceLabel = "com.docker.compose.service"

// DockerHealthChecker reports service health from the container engine: a
// service is healthy when its container is running and, if a healthcheck is
// defined, reporting healthy.
type DockerHealthChecker struct {
	cli *client.Client
}

// NewDockerHealthChecker creates a checker over an engine client.
func NewDockerHealthChecker(cli *client.Client) *DockerHealthChecker {
	return &DockerHealthChecker{cli: cli}
}

// Check inspects the container backing each service. The input maps logical
// service name to its compose/container name; the output maps logical name
// to nil (healthy) or the reason it is not.
func (h *DockerHealthChecker) Check(ctx context.Context, services map[string]string) (map[string]error, error) {
	containers, err := h.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	verdicts := make(map[string]error, len(services))
	for name, composeName := range services {
		id, found := findContainer(containers, composeName)
		if !found {
			verdicts[name] = fmt.Errorf("no container found for service %s", composeName)
			continue
		}
		verdicts[name] = h.inspect(ctx, name, id)
	}
	return verdicts, nil
}

func (h *DockerHealthChecker) inspect(ctx context.Context, name, id string) error {
	info, err := h.cli.ContainerInspect(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}
	if info.State == nil || !info.State.Running {
		state := "unknown"
		if info.State != nil {
			state = info.State.Status
		}
		return fmt.Errorf("container is %s, not running", state)
	}
	// An absent healthcheck counts as healthy, same as compose.
	if info.State.Health != nil && info.State.Health.Status != "healthy" {
		return fmt.Errorf("container health is %s", info.State.Health.Status)
	}
	logger.Debug("Service healthy", "service", name, "container", id[:12])
	return nil
}

func findContainer(containers []container.Summary, composeName string) (string, bool) {
	for _, c := range containers {
		if c.Labels[composeServiceLabel] == composeName {
			return c.ID, true
		}
	}
	// Fall back to name matching for stacks not launched via compose.
	for _, c := range containers {
		for _, n := range c.Names {
			if strings.Contains(strings.TrimPrefix(n, "/"), composeName) {
				return c.ID, true
			}
		}
	}
	return "", false
}
