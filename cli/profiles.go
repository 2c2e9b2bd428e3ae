package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile is a named server the admin commands can target
type Profile struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description,omitempty"`
	CleanupKey  string `yaml:"cleanup_key,omitempty"`
}

// Profiles is the CLI's server list, persisted as YAML
type Profiles struct {
	Default  string             `yaml:"default"`
	Profiles map[string]Profile `yaml:"profiles"`
	path     string
}

// DefaultProfilesPath is ~/.faultline/profiles.yaml
func DefaultProfilesPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".faultline", "profiles.yaml"), nil
}

// LoadProfiles reads path. A missing file yields an empty list.
func LoadProfiles(path string) (*Profiles, error) {
	p := &Profiles{Profiles: make(map[string]Profile), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if p.Profiles == nil {
		p.Profiles = make(map[string]Profile)
	}
	p.path = path
	return p, nil
}

// Save writes the list back; the file holds keys so it is owner-only.
func (p *Profiles) Save() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0600)
}

// Add stores a profile; the first one added becomes the default
func (p *Profiles) Add(name string, prof Profile) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if prof.URL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	p.Profiles[name] = prof
	if p.Default == "" {
		p.Default = name
	}
	return p.Save()
}

// Remove deletes a profile, picking a new default if needed
func (p *Profiles) Remove(name string) error {
	if _, exists := p.Profiles[name]; !exists {
		return fmt.Errorf("profile '%s' not found", name)
	}

	delete(p.Profiles, name)
	if p.Default == name {
		p.Default = ""
		if names := p.Names(); len(names) > 0 {
			p.Default = names[0]
		}
	}
	return p.Save()
}

// Use sets the default profile
func (p *Profiles) Use(name string) error {
	if _, exists := p.Profiles[name]; !exists {
		return fmt.Errorf("profile '%s' not found", name)
	}
	p.Default = name
	return p.Save()
}

// Get returns the named profile, or the default one when name is empty.
// ok is false when nothing matches.
func (p *Profiles) Get(name string) (Profile, bool) {
	if name == "" {
		name = p.Default
	}
	prof, ok := p.Profiles[name]
	return prof, ok
}

// Names lists profile names in order
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.Profiles))
	for n := range p.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
