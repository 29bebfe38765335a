// Package catalogfs reads catalog templates from a directory of YAML files,
// one template per *.yml or *.yaml file.
package catalogfs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dyluth/atelier/pkg/catalog"
	"gopkg.in/yaml.v3"
)

// Store serves templates from dir. The directory is indexed on Open and on
// Reload; Fetch re-reads the file so edits are visible without a reload.
type Store struct {
	dir string

	mu    sync.RWMutex
	paths map[string]string   // template id -> file
	index map[string][]string // typology -> ids in file name order
}

// Open indexes every template file in dir.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// Reload rebuilds the id and typology index from the directory contents.
func (s *Store) Reload() error {
	templates, files, err := readDir(s.dir)
	if err != nil {
		return err
	}

	paths := make(map[string]string, len(templates))
	index := make(map[string][]string)
	for i, t := range templates {
		if prev, dup := paths[t.ID]; dup {
			return fmt.Errorf("template %s is defined in both %s and %s", t.ID, prev, files[i])
		}
		paths[t.ID] = files[i]
		index[t.Typology] = append(index[t.Typology], t.ID)
	}

	s.mu.Lock()
	s.paths = paths
	s.index = index
	s.mu.Unlock()
	return nil
}

// Fetch reads the template with id. A template not in the index wraps
// catalog.ErrNotFound.
func (s *Store) Fetch(ctx context.Context, id string) (*catalog.TemplateDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	path, ok := s.paths[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, catalog.ErrNotFound)
	}

	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if t.ID != id {
		return nil, fmt.Errorf("template file %s now holds %s, expected %s", path, t.ID, id)
	}
	return t, nil
}

// TemplateIDs returns the ids indexed under typology, in file name order.
func (s *Store) TemplateIDs(ctx context.Context, typology string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.index[typology]...), nil
}

// ListTemplates reads every indexed template, sorted by ID.
func (s *Store) ListTemplates(ctx context.Context) ([]*catalog.TemplateDescriptor, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.paths))
	for id := range s.paths {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	templates := make([]*catalog.TemplateDescriptor, 0, len(ids))
	for _, id := range ids {
		t, err := s.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// ReadDir parses and validates every template file in dir, in file name order.
func ReadDir(dir string) ([]*catalog.TemplateDescriptor, error) {
	templates, _, err := readDir(dir)
	return templates, err
}

func readDir(dir string) ([]*catalog.TemplateDescriptor, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	var (
		templates []*catalog.TemplateDescriptor
		files     []string
	)
	for _, e := range entries {
		if e.IsDir() || !isTemplateFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		t, err := LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		templates = append(templates, t)
		files = append(files, path)
	}
	return templates, files, nil
}

// LoadFile parses and validates a single template file. Unknown keys are rejected.
func LoadFile(path string) (*catalog.TemplateDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	var t catalog.TemplateDescriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if t.Keywords == nil {
		t.Keywords = []string{}
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	if t.Incompatible == nil {
		t.Incompatible = []string{}
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template in %s: %w", filepath.Base(path), err)
	}
	return &t, nil
}

// WriteFile writes t as YAML to dir/<id>.yml.
func WriteFile(dir string, t *catalog.TemplateDescriptor) (string, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template: %w", err)
	}
	path := filepath.Join(dir, t.ID+".yml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write template: %w", err)
	}
	return path, nil
}

func isTemplateFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
