package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// profileExt is the on-disk extension; one file per profile.
const profileExt = ".yaml"

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName rejects profile names that cannot be a safe filename.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name is empty")
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: use letters, digits, dot, dash and underscore, starting with a letter or digit", name)
	}
	return nil
}

// Store keeps profiles as YAML files in one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first save, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns the per-user profile directory.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "profiles")
	}
	return filepath.Join(dir, "wayrange", "profiles")
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file a profile name maps to.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+profileExt)
}

// List returns the saved profile names, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), profileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), profileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one profile by name.
func (s *Store) Load(name string) (*Profile, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %s does not exist", name)
		}
		return nil, fmt.Errorf("failed to read profile %s: %w", name, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", name, err)
	}
	p.Name = name
	return &p, nil
}

// LoadAll reads every profile in the store.
func (s *Store) LoadAll() ([]*Profile, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}

	profiles := make([]*Profile, 0, len(names))
	for _, name := range names {
		p, err := s.Load(name)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Exists reports whether a profile with the given name is saved.
func (s *Store) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Save writes a profile atomically: the new content lands under a
// temporary name in the same directory and replaces the old file in one
// rename.
func (s *Store) Save(p *Profile) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if len(p.Entries) == 0 {
		return fmt.Errorf("profile %s has no displays to save", p.Name)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", p.Name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+p.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary profile file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profile %s: %w", p.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", p.Name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set profile permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(p.Name)); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.Name, err)
	}
	return nil
}

// Delete removes a saved profile.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("profile %s does not exist", name)
		}
		return fmt.Errorf("failed to delete profile %s: %w", name, err)
	}
	return nil
}
