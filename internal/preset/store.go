package preset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/petems/whowhatwhere/internal/watchdog"
)

const ext = ".yaml"

var ErrNotFound = errors.New("preset not found")

// Store loads and saves named rule lists
type Store interface {
	List() ([]string, error)
	Load(name string) ([]watchdog.Rule, error)
	Save(name string, rules []watchdog.Rule) error
	Delete(name string) error
}

// FileStore keeps one YAML file per preset in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Load(name string) ([]watchdog.Rule, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preset %s: %w", name, err)
	}
	rules, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	return rules, nil
}

// Save writes the preset atomically via a temp file and rename.
func (s *FileStore) Save(name string, rules []watchdog.Rule) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	data, err := Encode(rules)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create preset dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to save preset %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save preset %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save preset %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save preset %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to delete preset %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid preset name %q", name)
	}
	return filepath.Join(s.dir, name+ext), nil
}

// NameFromPath returns the preset name for a file in the store directory,
// or false for files that are not presets.
func NameFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if filepath.Ext(base) != ext || strings.HasPrefix(base, ".") {
		return "", false
	}
	return strings.TrimSuffix(base, ext), true
}
