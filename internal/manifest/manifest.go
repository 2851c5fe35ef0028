// Package manifest loads the workspace description (inplace.yaml): the
// projects, what they require, which are activated and the closure scopes
// used by activation and deactivation.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/inplace/pkg/adapters/memory"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/registry"
)

// FileName is the manifest looked up in a workspace directory.
const FileName = "inplace.yaml"

// DefaultFilePath is where the file driver keeps node snapshots, relative
// to the manifest directory.
const DefaultFilePath = ".inplace/nodes"

// Environment variables overriding the manifest.
const (
	EnvRedisAddr     = "INPLACE_REDIS_ADDR"
	EnvRedisPassword = "INPLACE_REDIS_PASSWORD"
	EnvStorePath     = "INPLACE_STORE_PATH"
	EnvJournalPath   = "INPLACE_JOURNAL_PATH"
)

var ErrNotFound = errors.New("manifest not found")

// Project is one workspace project.
type Project struct {
	Name         string   `yaml:"name" validate:"required,excludesall=/"`
	Requires     []string `yaml:"requires,omitempty" validate:"dive,required"`
	Activated    bool     `yaml:"activated,omitempty"`
	Lazy         bool     `yaml:"lazy,omitempty"`
	Location     string   `yaml:"location,omitempty"`
	SymbolicName string   `yaml:"symbolic_name,omitempty"`
	Version      string   `yaml:"version,omitempty"`
}

// Storage selects where nodes and the transition journal are persisted.
type Storage struct {
	Driver    string `yaml:"driver,omitempty" validate:"omitempty,oneof=memory file badger redis"`
	Path      string `yaml:"path,omitempty" validate:"required_if=Driver badger"`
	RedisAddr string `yaml:"redis_addr,omitempty" validate:"omitempty,hostname_port"`
	Password  string `yaml:"-"`
	Prefix    string `yaml:"prefix,omitempty"`
	Journal   string `yaml:"journal,omitempty"`
}

// Scheduler tunes the debounced update flush.
type Scheduler struct {
	Interval string `yaml:"interval,omitempty" validate:"omitempty,duration"`
	Quiet    string `yaml:"quiet,omitempty" validate:"omitempty,duration"`
}

// Manifest is the parsed inplace.yaml.
type Manifest struct {
	Name      string         `yaml:"name,omitempty"`
	Projects  []Project      `yaml:"projects" validate:"required,min=1,unique=Name,dive"`
	Scopes    map[string]any `yaml:"scopes,omitempty"`
	Storage   Storage        `yaml:"storage,omitempty"`
	Scheduler Scheduler      `yaml:"scheduler,omitempty"`

	// Dir is the directory the manifest was read from.
	Dir string `yaml:"-"`

	options closure.Options
}

// Path returns the manifest location for a workspace directory or file.
func Path(dirOrFile string) string {
	if strings.HasSuffix(dirOrFile, ".yaml") || strings.HasSuffix(dirOrFile, ".yml") {
		return dirOrFile
	}
	return filepath.Join(dirOrFile, FileName)
}

// Load reads the manifest, loading a .env file next to it first.
func Load(dirOrFile string) (*Manifest, error) {
	path := Path(dirOrFile)
	dir := filepath.Dir(path)

	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir = dir
	if m.Storage.Driver == "file" && m.Storage.Path == "" {
		m.Storage.Path = DefaultFilePath
	}
	if m.Storage.Path != "" && !filepath.IsAbs(m.Storage.Path) {
		m.Storage.Path = filepath.Join(dir, m.Storage.Path)
	}
	if m.Storage.Journal != "" && m.Storage.Journal != ":memory:" && !filepath.IsAbs(m.Storage.Journal) {
		m.Storage.Journal = filepath.Join(dir, m.Storage.Journal)
	}
	return m, nil
}

// Parse decodes and validates a manifest. Environment overrides are
// applied before validation.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	m.applyEnv()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyEnv() {
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		m.Storage.Driver = "redis"
		m.Storage.RedisAddr = addr
	}
	if pw := os.Getenv(EnvRedisPassword); pw != "" {
		m.Storage.Password = pw
	}
	if path := os.Getenv(EnvStorePath); path != "" && m.Storage.Driver != "redis" {
		m.Storage.Driver = "badger"
		m.Storage.Path = path
	}
	if path := os.Getenv(EnvJournalPath); path != "" {
		m.Storage.Journal = path
	}
}

// Validate checks struct tags, requirement targets and closure scopes.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &ValidationError{Fields: verrs}
		}
		return err
	}

	if m.Storage.Driver == "redis" && m.Storage.RedisAddr == "" {
		return fmt.Errorf("storage driver redis needs redis_addr or %s", EnvRedisAddr)
	}

	known := make(map[string]bool, len(m.Projects))
	for _, p := range m.Projects {
		known[p.Name] = true
	}
	for _, p := range m.Projects {
		for _, r := range p.Requires {
			if !known[r] {
				return fmt.Errorf("project %q requires unknown project %q", p.Name, r)
			}
		}
	}

	opts, err := closure.DecodeOptions(m.Scopes)
	if err != nil {
		return err
	}
	m.options = opts
	return nil
}

// ClosureOptions returns the validated closure scopes.
func (m *Manifest) ClosureOptions() closure.Options {
	return m.options
}

// Project returns the named project.
func (m *Manifest) Project(name domain.ProjectKey) (Project, bool) {
	for _, p := range m.Projects {
		if p.Name == string(name) {
			return p, true
		}
	}
	return Project{}, false
}

// Keys returns the project keys in declaration order.
func (m *Manifest) Keys() []domain.ProjectKey {
	keys := make([]domain.ProjectKey, len(m.Projects))
	for i, p := range m.Projects {
		keys[i] = domain.ProjectKey(p.Name)
	}
	return keys
}

// Dependencies builds the declared requirement table.
func (m *Manifest) Dependencies() *memory.Dependencies {
	deps := memory.NewDependencies()
	m.Apply(deps)
	return deps
}

// Apply replaces the declarations held by deps with the manifest's.
func (m *Manifest) Apply(deps *memory.Dependencies) {
	declared := make(map[domain.ProjectKey]bool, len(m.Projects))
	for _, p := range m.Projects {
		key := domain.ProjectKey(p.Name)
		declared[key] = true
		providers := make([]domain.ProjectKey, len(p.Requires))
		for i, r := range p.Requires {
			providers[i] = domain.ProjectKey(r)
		}
		deps.Set(key, providers...)
	}
	for _, p := range deps.Projects() {
		if !declared[p] {
			deps.Remove(p)
		}
	}
}

// Register adds every project missing from reg, deactivated. Activation is
// left to an Activate job so the closure and cycle rules apply.
// It returns the projects that were added.
func (m *Manifest) Register(reg *registry.Registry) ([]domain.ProjectKey, error) {
	var added []domain.ProjectKey
	for _, key := range m.Keys() {
		if reg.Contains(key) {
			continue
		}
		if _, err := reg.Register(key, nil, domain.Deactivated); err != nil {
			return added, err
		}
		added = append(added, key)
	}
	return added, nil
}

// Removed lists registered projects the manifest no longer declares.
func (m *Manifest) Removed(reg *registry.Registry) []domain.ProjectKey {
	var removed []domain.ProjectKey
	for _, key := range reg.Projects() {
		if _, ok := m.Project(key); !ok {
			removed = append(removed, key)
		}
	}
	return removed
}

// Activated lists the projects declared as activated.
func (m *Manifest) Activated() []domain.ProjectKey {
	var keys []domain.ProjectKey
	for _, p := range m.Projects {
		if p.Activated {
			keys = append(keys, domain.ProjectKey(p.Name))
		}
	}
	return keys
}

// IsLazy reports the declared activation policy of a project.
func (m *Manifest) IsLazy(key domain.ProjectKey) bool {
	p, ok := m.Project(key)
	return ok && p.Lazy
}

// Location returns the install location of a project, relative paths
// resolved against the manifest directory.
func (m *Manifest) Location(key domain.ProjectKey) string {
	p, ok := m.Project(key)
	loc := p.Location
	if !ok || loc == "" {
		loc = string(key)
	}
	if strings.Contains(loc, ":") {
		return loc
	}
	if !filepath.IsAbs(loc) && m.Dir != "" {
		loc = filepath.Join(m.Dir, loc)
	}
	return "reference:file:" + loc
}

// Identity returns the symbolic name and version a project installs as.
func (m *Manifest) Identity(key domain.ProjectKey) (string, string) {
	p, _ := m.Project(key)
	name, version := p.SymbolicName, p.Version
	if name == "" {
		name = string(key)
	}
	if version == "" {
		version = "1.0.0"
	}
	return name, version
}

// Dirs maps the directory of every project installed from a file location
// to its key. Projects with other location schemes are left out.
func (m *Manifest) Dirs() map[string]domain.ProjectKey {
	dirs := make(map[string]domain.ProjectKey, len(m.Projects))
	for _, key := range m.Keys() {
		if dir, ok := strings.CutPrefix(m.Location(key), "reference:file:"); ok {
			dirs[filepath.Clean(dir)] = key
		}
	}
	return dirs
}
