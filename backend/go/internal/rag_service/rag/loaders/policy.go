package loaders

import (
	"fmt"
	"path/filepath"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/gobwas/glob"
)

// PathPolicy restricts ingestion to files matching at least one glob pattern.
// "*" stays within a directory, "**" spans directories. An empty policy allows everything.
type PathPolicy struct {
	patterns []string
	globs    []glob.Glob
}

func NewPathPolicy(patterns []string) (*PathPolicy, error) {
	p := &PathPolicy{}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(filepath.ToSlash(pattern), '/')
		if err != nil {
			return nil, ragerr.Wrapf(err, ragerr.CodeConfigInvalid, "invalid allowed path pattern %q", pattern)
		}
		p.patterns = append(p.patterns, pattern)
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Allowed matches the cleaned path, so ".." segments cannot escape a pattern.
func (p *PathPolicy) Allowed(path string) bool {
	if p == nil || len(p.globs) == 0 {
		return true
	}
	cleaned := filepath.ToSlash(filepath.Clean(path))
	for _, g := range p.globs {
		if g.Match(cleaned) {
			return true
		}
	}
	return false
}

func (p *PathPolicy) Check(path string) error {
	if p.Allowed(path) {
		return nil
	}
	return ragerr.New(ragerr.CodePathNotAllowed,
		fmt.Sprintf("%s is outside the allowed ingestion paths", path),
		ragerr.FieldPath(path), ragerr.Field("patterns", p.patterns))
}
