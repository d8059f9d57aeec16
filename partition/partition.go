// Package partition turns the configured spec patterns into the ordered
// work-unit sequence the scheduler consumes, and selects the slice owned by
// the current shard.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/specrunner/specrunner/registry"
	"github.com/specrunner/specrunner/types"
)

// Partitioner resolves spec patterns against a base directory.
type Partitioner struct {
	log     *zap.SugaredLogger
	baseDir string
	strict  bool
}

// New creates a partitioner. When strict is true, any single pattern that
// resolves to zero files fails the run instead of logging a warning.
func New(log *zap.SugaredLogger, baseDir string, strict bool) *Partitioner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Partitioner{log: log, baseDir: baseDir, strict: strict}
}

// Partition resolves each entry to concrete files, applies exclusions,
// removes duplicates on first-seen order and groups array entries into
// single work units. An entirely empty result is an error regardless of
// strictness; exclusions present excuse empty per-pattern resolution.
func (p *Partitioner) Partition(entries []registry.SpecEntry, exclude []string) ([]types.WorkUnit, error) {
	seen := make(map[string]bool)
	var units []types.WorkUnit

	addUnit := func(files []string) {
		var kept []string
		for _, f := range files {
			if seen[f] {
				continue
			}
			seen[f] = true
			kept = append(kept, f)
		}
		if len(kept) > 0 {
			units = append(units, types.NewWorkUnit(len(units), kept))
		}
	}

	hadEmptyPattern := false
	for _, entry := range entries {
		var resolved []string
		for _, pattern := range entry.Patterns {
			files, err := p.resolve(pattern)
			if err != nil {
				return nil, err
			}
			files = p.applyExclusions(files, exclude)
			if len(files) == 0 {
				hadEmptyPattern = true
				if p.strict && len(exclude) == 0 {
					return nil, fmt.Errorf("spec pattern %q resolved to no files", pattern)
				}
				p.log.Warnw("Spec pattern resolved to no files", "pattern", pattern)
				continue
			}
			resolved = append(resolved, files...)
		}

		if entry.Grouped {
			addUnit(resolved)
		} else {
			for _, f := range resolved {
				addUnit([]string{f})
			}
		}
	}

	if len(units) == 0 {
		if hadEmptyPattern {
			return nil, fmt.Errorf("no spec files found: every configured pattern resolved to zero files")
		}
		return nil, fmt.Errorf("no spec files configured")
	}

	p.log.Infow("Partitioned spec files", "units", len(units), "files", len(seen))
	return units, nil
}

// resolve expands a single pattern. Literal paths pass through a stat check
// so typos surface as missing files rather than silent empties.
func (p *Partitioner) resolve(pattern string) ([]string, error) {
	if !hasGlobMeta(pattern) {
		abs := pattern
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(p.baseDir, pattern)
		}
		if _, err := os.Stat(abs); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("checking spec file %q: %w", pattern, err)
		}
		return []string{abs}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(p.baseDir), filepath.ToSlash(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid spec pattern %q: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(p.baseDir, filepath.FromSlash(m)))
	}
	return files, nil
}

// applyExclusions drops files matched by any exclude pattern, by exact path
// or glob match against the path relative to the base directory.
func (p *Partitioner) applyExclusions(files []string, exclude []string) []string {
	if len(exclude) == 0 {
		return files
	}

	var kept []string
	for _, f := range files {
		if p.excluded(f, exclude) {
			p.log.Debugw("Excluding spec file", "file", f)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func (p *Partitioner) excluded(file string, exclude []string) bool {
	rel, err := filepath.Rel(p.baseDir, file)
	if err != nil {
		rel = file
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range exclude {
		if pattern == file || filepath.ToSlash(pattern) == rel {
			return true
		}
		if ok, err := doublestar.Match(filepath.ToSlash(pattern), rel); err == nil && ok {
			return true
		}
	}
	return false
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
