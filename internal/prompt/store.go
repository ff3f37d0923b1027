// Package prompt loads versioned text templates from a directory and
// renders them with keyword substitution. Templates are named
// <name>.<version>.txt; the highest version of each name wins. Watch
// enables hot reload during prompt iteration.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"ansari/internal/logging"
)

type template struct {
	version int
	content string
}

// Store holds the loaded templates. Safe for concurrent Render and Reload.
type Store struct {
	dir string

	mu        sync.RWMutex
	templates map[string]template
}

// NewStore loads every template in dir.
func NewStore(dir string) (*Store, error) {
	s := &Store{dir: dir, templates: make(map[string]template)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the template directory, replacing the loaded set.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read templates dir: %w", err)
	}

	loaded := make(map[string]template)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		name, version, ok := parseTemplateName(entry.Name())
		if !ok {
			logging.Get(logging.CategoryPrompt).Warnf("skipping unrecognized template file %q", entry.Name())
			continue
		}
		if existing, exists := loaded[name]; exists && existing.version >= version {
			continue
		}
		content, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}
		loaded[name] = template{version: version, content: string(content)}
	}

	s.mu.Lock()
	s.templates = loaded
	s.mu.Unlock()

	logging.Get(logging.CategoryPrompt).Debugf("loaded %d templates from %s", len(loaded), s.dir)
	return nil
}

// Render substitutes {{key}} markers with vars. Unknown markers are left in
// place so a missing variable is visible in output rather than silently
// erased.
func (s *Store) Render(name string, vars map[string]string) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}

	out := tmpl.content
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out, nil
}

// Names returns the loaded template names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	return names
}

// parseTemplateName splits "system_msg_tool.2.txt" into name and version.
// A file without a version segment loads as version 0.
func parseTemplateName(filename string) (string, int, bool) {
	base := strings.TrimSuffix(filename, ".txt")
	if base == "" {
		return "", 0, false
	}
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return base, 0, true
	}
	version, err := strconv.Atoi(base[idx+1:])
	if err != nil || version < 0 {
		return "", 0, false
	}
	name := base[:idx]
	if name == "" {
		return "", 0, false
	}
	return name, version, true
}
