// Package envfile renders the manifest into the flat key/value override file
// consumed by the orchestration layer. The file is derived state: never
// hand-edited, always safe to regenerate.
package envfile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/stevedore-sh/stevedore/internal/manifest"
	"github.com/stevedore-sh/stevedore/pkg/imageref"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// Projector renders manifest state to an env override file.
type Projector struct {
	path     string
	prefix   string
	registry string
}

// New creates a projector writing to path with the given variable prefix.
func New(path, prefix, registry string) *Projector {
	return &Projector{path: path, prefix: prefix, registry: registry}
}

// Path returns the output file location.
func (p *Projector) Path() string { return p.path }

// Render produces the file contents for a manifest. Output is fully
// deterministic: services are emitted in sorted order and no timestamps are
// included, so rendering twice with no manifest change is byte-identical.
func (p *Projector) Render(m *manifest.Manifest) []byte {
	var b strings.Builder
	b.WriteString("# Service versions\n")
	b.WriteString("# Auto-generated from the version manifest - DO NOT EDIT MANUALLY\n")
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s_REGISTRY=%s\n", p.prefix, p.registry))
	b.WriteString("\n")

	names := m.ServiceNames()
	sort.Strings(names)
	for _, name := range names {
		svc := m.Services[name]
		key := varName(name)
		b.WriteString(fmt.Sprintf("%s_%s_IMAGE=%s\n", p.prefix, key, svc.Repository))
		b.WriteString(fmt.Sprintf("%s_%s_TAG=%s\n", p.prefix, key, svc.CurrentTag))
		b.WriteString(fmt.Sprintf("%s_%s_REF=%s\n", p.prefix, key,
			imageref.Pinned(svc.Repository, svc.CurrentTag, svc.CurrentDigest)))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// Generate writes the rendered overrides, reporting whether the file content
// changed. A nil manifest emits nothing and leaves any existing file alone:
// the caller falls back to defaults.
func (p *Projector) Generate(m *manifest.Manifest) (bool, error) {
	if m == nil {
		logger.Debug("No manifest, skipping env generation")
		return false, nil
	}

	rendered := p.Render(m)

	if prev, err := os.ReadFile(p.path); err == nil && string(prev) == string(rendered) {
		return false, nil
	}

	if err := os.WriteFile(p.path, rendered, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", p.path, err)
	}
	logger.Info("Environment overrides generated", "path", p.path)
	return true, nil
}

// Read parses an existing override file into a map, mainly so callers can
// report what the orchestration layer currently sees.
func Read(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return vars, nil
}

func varName(service string) string {
	s := strings.ToUpper(service)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}
