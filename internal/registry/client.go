// Package registry talks to the container engine and the image registries
// behind it: pulling image references, resolving tags to content digests and
// mapping mutable labels to semantic version tags.
package registry

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/opencontainers/go-digest"

	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// Client is the registry access surface the version manager depends on.
type Client interface {
	// Pull makes the referenced image locally available.
	Pull(ctx context.Context, ref string) error
	// Digest returns the content digest the registry currently associates
	// with the reference.
	Digest(ctx context.Context, ref string) (digest.Digest, error)
	// LocalTags returns the locally known repo tags and repo digests for an
	// image reference.
	LocalTags(ctx context.Context, ref string) (tags []string, digests []string, err error)
}

// DockerClient implements Client against the Docker engine API.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient connects to the engine using the standard environment
// (DOCKER_HOST etc.) with API version negotiation.
func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerClient{cli: cli}, nil
}

// Raw exposes the underlying engine client for collaborators that need more
// than registry access (e.g. the health checker).
func (d *DockerClient) Raw() *client.Client { return d.cli }

// Pull pulls an image reference and drains the progress stream. The engine
// only tags the image after the full download succeeds, so an interrupted
// pull never leaves a partially advertised local artifact.
func (d *DockerClient) Pull(ctx context.Context, ref string) error {
	logger.Debug("Pulling image", "image", ref)

	reader, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// Reading the response to completion is required for the pull to finish.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to read pull response for image %s: %w", ref, err)
	}

	logger.Debug("Image pulled", "image", ref)
	return nil
}

// Digest asks the registry for the manifest digest of a reference via the
// distribution endpoint.
func (d *DockerClient) Digest(ctx context.Context, ref string) (digest.Digest, error) {
	inspect, err := d.cli.DistributionInspect(ctx, ref, "")
	if err != nil {
		return "", fmt.Errorf("failed to inspect distribution for %s: %w", ref, err)
	}
	return inspect.Descriptor.Digest, nil
}

// LocalTags inspects a locally available image and returns its repo tags and
// repo digests.
func (d *DockerClient) LocalTags(ctx context.Context, ref string) ([]string, []string, error) {
	info, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	return info.RepoTags, info.RepoDigests, nil
}
