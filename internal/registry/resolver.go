package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/stevedore-sh/stevedore/pkg/imageref"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// Resolver maps mutable tags to immutable content digests, and mutable
// release labels to the semantic version tag they currently point at.
// Resolution is always re-run per operation: the same tag can point to
// different content over time, so nothing is cached.
type Resolver struct {
	client Client
}

// NewResolver creates a resolver over the given client.
func NewResolver(client Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the digest the registry currently associates with
// repository:tag. When the registry cannot answer (auth, network, endpoint
// missing) it falls back to the locally recorded repo digest of the pulled
// image; if that fails too the error wraps ErrResolveUnavailable so callers
// can degrade to tag-only identity.
func (r *Resolver) Resolve(ctx context.Context, repository, tag string) (string, error) {
	ref := imageref.Tagged(repository, tag)

	dgst, err := r.client.Digest(ctx, ref)
	if err == nil {
		return dgst.String(), nil
	}
	logger.Debug("Registry digest lookup failed, trying local image", "image", ref, "error", err)

	if local, ok := r.localDigest(ctx, ref, repository); ok {
		return local, nil
	}

	return "", fmt.Errorf("%w: %s: %v", ErrResolveUnavailable, ref, err)
}

// localDigest inspects the locally pulled image and extracts the repo digest
// matching the repository.
func (r *Resolver) localDigest(ctx context.Context, ref, repository string) (string, bool) {
	_, digests, err := r.client.LocalTags(ctx, ref)
	if err != nil {
		return "", false
	}
	for _, rd := range digests {
		// RepoDigests entries look like "repo@sha256:...".
		name, d := imageref.Parse(rd)
		if name == repository && imageref.IsDigest(d) {
			return d, true
		}
	}
	return "", false
}

// SemanticTag finds the highest semantic version tag the local engine knows
// for the image currently behind repository:tag. Used to pin a mutable
// release label (e.g. "latest") to the reproducible version it was resolved
// from. Returns false when no semantic tag is known.
func (r *Resolver) SemanticTag(ctx context.Context, repository, tag string) (string, bool) {
	tags, _, err := r.client.LocalTags(ctx, imageref.Tagged(repository, tag))
	if err != nil {
		logger.Debug("Local tag lookup failed", "repository", repository, "error", err)
		return "", false
	}

	var best *semver.Version
	var bestTag string
	for _, rt := range tags {
		name, t := imageref.Parse(rt)
		if name != repository || t == "latest" || strings.HasPrefix(t, "sha") {
			continue
		}
		v, err := semver.NewVersion(t)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestTag = t
		}
	}
	if best == nil {
		return "", false
	}
	return bestTag, true
}
