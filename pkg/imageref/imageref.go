package imageref

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Parse parses an image reference into name and tag/digest.
// Supports formats:
//   - image:tag (default tag is "latest")
//   - image@sha256:... (digest)
//   - image (defaults to "latest")
//   - registry.example.com/image:tag
//   - registry.example.com:5000/image:tag
//
// Returns:
//   - name: the image name (including registry if specified)
//   - reference: the tag (e.g., "latest") or digest (e.g., "sha256:...")
func Parse(imageRef string) (string, string) {
	// Check for digest reference (@sha256:...)
	if idx := strings.Index(imageRef, "@sha256:"); idx != -1 {
		return imageRef[:idx], imageRef[idx+1:]
	}

	// Check for tag reference (:tag)
	if idx := strings.Index(imageRef, ":"); idx != -1 {
		// Check if this is actually a port number (e.g., registry:5000/image)
		// by looking for a slash before the colon
		if slashIdx := strings.Index(imageRef, "/"); slashIdx != -1 && slashIdx > idx {
			// Slash comes after colon, so colon is part of registry port
			if tagIdx := strings.Index(imageRef[slashIdx:], ":"); tagIdx != -1 {
				actualTagIdx := slashIdx + tagIdx
				return imageRef[:actualTagIdx], imageRef[actualTagIdx+1:]
			}
			return imageRef, "latest"
		}
		return imageRef[:idx], imageRef[idx+1:]
	}

	return imageRef, "latest"
}

// Tagged returns "repository:tag".
func Tagged(repository, tag string) string {
	return fmt.Sprintf("%s:%s", repository, tag)
}

// Digested returns "repository@sha256:...".
func Digested(repository string, dgst digest.Digest) string {
	return fmt.Sprintf("%s@%s", repository, dgst)
}

// Pinned returns the most precise reference available for a repository:
// digest-qualified when a valid digest is recorded, tag-qualified otherwise.
func Pinned(repository, tag, rawDigest string) string {
	if rawDigest != "" {
		if dgst, err := digest.Parse(rawDigest); err == nil {
			return Digested(repository, dgst)
		}
	}
	return Tagged(repository, tag)
}

// IsDigest reports whether ref is a digest reference rather than a tag.
func IsDigest(ref string) bool {
	_, err := digest.Parse(ref)
	return err == nil
}
