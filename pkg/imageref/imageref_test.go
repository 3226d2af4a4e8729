package imageref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		imageRef string
		wantName string
		wantRef  string
	}{
		{
			name:     "simple image with latest tag",
			imageRef: "myapp:latest",
			wantName: "myapp",
			wantRef:  "latest",
		},
		{
			name:     "simple image with custom tag",
			imageRef: "myapp:v1.0.0",
			wantName: "myapp",
			wantRef:  "v1.0.0",
		},
		{
			name:     "image with digest",
			imageRef: "myapp@sha256:abc123def456",
			wantName: "myapp",
			wantRef:  "sha256:abc123def456",
		},
		{
			name:     "registry with image and tag",
			imageRef: "registry.example.com/myapp:latest",
			wantName: "registry.example.com/myapp",
			wantRef:  "latest",
		},
		{
			name:     "registry with port and image and tag",
			imageRef: "registry.example.com:5000/myapp:v1.0",
			wantName: "registry.example.com:5000/myapp",
			wantRef:  "v1.0",
		},
		{
			name:     "registry with port and no tag",
			imageRef: "registry.example.com:5000/myapp",
			wantName: "registry.example.com:5000/myapp",
			wantRef:  "latest",
		},
		{
			name:     "bare image defaults to latest",
			imageRef: "myapp",
			wantName: "myapp",
			wantRef:  "latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ref := Parse(tt.imageRef)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantRef, ref)
		})
	}
}

func TestPinned(t *testing.T) {
	dgst := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	t.Run("prefers digest when valid", func(t *testing.T) {
		assert.Equal(t, "repo/app@"+dgst, Pinned("repo/app", "latest", dgst))
	})

	t.Run("falls back to tag without digest", func(t *testing.T) {
		assert.Equal(t, "repo/app:1.42", Pinned("repo/app", "1.42", ""))
	})

	t.Run("falls back to tag on malformed digest", func(t *testing.T) {
		assert.Equal(t, "repo/app:1.42", Pinned("repo/app", "1.42", "not-a-digest"))
	})
}

func TestIsDigest(t *testing.T) {
	assert.True(t, IsDigest("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
	assert.False(t, IsDigest("latest"))
	assert.False(t, IsDigest("sha256:short"))
}
