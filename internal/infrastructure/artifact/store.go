// Package artifact lays out append-only stage outputs:
// <root>/<stage>/<UTC timestamp>-<run id prefix>/ with a manifest.yaml per run.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/tabular"
)

// ManifestFile is the name of the manifest written into every finished run directory
const ManifestFile = "manifest.yaml"

const timestampLayout = "20060102T150405.000000000Z"

// Manifest records how a stage run was produced.
type Manifest struct {
	RunID      string            `yaml:"run_id"`
	PipelineID string            `yaml:"pipeline_id,omitempty"`
	Stage      string            `yaml:"stage"`
	StartedAt  time.Time         `yaml:"started_at"`
	FinishedAt time.Time         `yaml:"finished_at"`
	Inputs     map[string]string `yaml:"inputs,omitempty"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
	Outputs    []string          `yaml:"outputs"`
	Errors     map[string]int64  `yaml:"errors"`
	Metrics    map[string]string `yaml:"metrics,omitempty"`
	Notes      []string          `yaml:"notes,omitempty"`
}

// Store creates and resolves run directories under a root.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a store rooted at root. The root is created lazily.
func NewStore(root string) *Store {
	return &Store{root: root, now: time.Now}
}

// Root returns the output root.
func (s *Store) Root() string {
	return s.root
}

// Run is one open stage run directory.
type Run struct {
	Dir string

	mu       sync.Mutex
	manifest Manifest
	finished bool
	now      func() time.Time
}

// Create makes a fresh run directory for stage. Existing directories are never reused.
func (s *Store) Create(stage, pipelineID string) (*Run, error) {
	stageDir := filepath.Join(s.root, stage)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stage directory: %w", err)
	}

	id := uuid.New()
	started := s.now().UTC()
	dir := filepath.Join(stageDir, started.Format(timestampLayout)+"-"+id.String()[:8])
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactExists, dir)
		}
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	return &Run{
		Dir: dir,
		manifest: Manifest{
			RunID:      id.String(),
			PipelineID: pipelineID,
			Stage:      stage,
			StartedAt:  started,
			Inputs:     map[string]string{},
			Parameters: map[string]string{},
			Metrics:    map[string]string{},
		},
		now: s.now,
	}, nil
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.manifest.RunID
}

// Path returns the path of a file inside the run directory.
func (r *Run) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// AddInput records an input file under a role name.
func (r *Run) AddInput(role, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest.Inputs[role] = path
}

// SetParameter records one effective parameter.
func (r *Run) SetParameter(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest.Parameters[key] = value
}

// SetMetric records one result metric.
func (r *Run) SetMetric(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest.Metrics[key] = value
}

// AddNote appends a free-form note.
func (r *Run) AddNote(note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest.Notes = append(r.manifest.Notes, note)
}

// WriteTable writes a CSV file into the run directory and records it as an output.
func (r *Run) WriteTable(name string, header []string, rows [][]string) (string, error) {
	path := r.Path(name)
	if err := tabular.WriteFile(path, header, rows); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.manifest.Outputs = append(r.manifest.Outputs, name)
	r.mu.Unlock()
	return path, nil
}

// Finish writes the manifest. A run can be finished once.
func (r *Run) Finish(summary *domain.Summary) (*Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return nil, fmt.Errorf("%w: run %s already finished", domain.ErrArtifactExists, r.manifest.RunID)
	}

	r.manifest.FinishedAt = r.now().UTC()
	r.manifest.Errors = map[string]int64{}
	if summary != nil {
		r.manifest.Errors = summary.Snapshot()
	}

	data, err := yaml.MarshalWithOptions(r.manifest, yaml.Indent(2))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	f, err := os.OpenFile(r.Path(ManifestFile), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close manifest: %w", err)
	}

	r.finished = true
	m := r.manifest
	return &m, nil
}

// ReadManifest loads the manifest of a run directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Latest returns the newest finished run directory of stage. Runs without a
// readable manifest are still in progress or failed and are skipped.
func (s *Store) Latest(stage string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, stage))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: no %s runs under %s", domain.ErrNotFound, stage, s.root)
		}
		return "", fmt.Errorf("failed to list %s runs: %w", stage, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		dir := filepath.Join(s.root, stage, name)
		if _, err := ReadManifest(dir); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: no finished %s runs under %s", domain.ErrNotFound, stage, s.root)
}

// LatestFile resolves a file inside the newest finished run of stage.
func (s *Store) LatestFile(stage, name string) (string, error) {
	dir, err := s.Latest(stage)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s in %s", domain.ErrNotFound, name, dir)
	}
	return path, nil
}
