package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultPath is the state file used when none is configured.
const DefaultPath = ".genie-forge.json"

// ErrCorruptState is returned by Load in strict mode when the state file
// cannot be decoded.
var ErrCorruptState = errors.New("state file is corrupt")

// Options configures a FileStore.
type Options struct {
	// Path is the state file. Defaults to DefaultPath.
	Path string

	// ProjectID names the project in a fresh state. A random id is used
	// when empty.
	ProjectID string

	// ProjectName is recorded in a fresh state.
	ProjectName string

	// StrictLoading makes Load fail on a corrupt file instead of starting
	// over with an empty state.
	StrictLoading bool

	Logger zerolog.Logger

	// Now overrides the clock.
	Now func() time.Time
}

// FileStore persists ProjectState as a JSON document.
//
// The document is loaded lazily and kept in memory until Refresh. Save
// replaces the file atomically. There is no cross-process locking: two
// processes saving the same file race and the last writer wins.
type FileStore struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	state *ProjectState
}

// NewFileStore creates a store. Nothing is read until Load.
func NewFileStore(opts Options) *FileStore {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &FileStore{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "state").Logger(),
	}
}

// Path returns the state file path.
func (s *FileStore) Path() string {
	return s.opts.Path
}

// Load returns the project state, reading the file on first use.
func (s *FileStore) Load() (*ProjectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (*ProjectState, error) {
	if s.state != nil {
		return s.state, nil
	}

	data, err := os.ReadFile(s.opts.Path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug().Str("path", s.opts.Path).Msg("No state file, starting fresh")
		s.state = s.fresh()
		return s.state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", s.opts.Path, err)
	}

	var st ProjectState
	if err := json.Unmarshal(data, &st); err != nil {
		if s.opts.StrictLoading {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.opts.Path, err)
		}
		s.logger.Warn().
			Err(err).
			Str("path", s.opts.Path).
			Msg("State file is corrupt, starting with empty state")
		s.state = s.fresh()
		return s.state, nil
	}

	st.normalize()
	s.state = &st

	s.logger.Debug().
		Str("path", s.opts.Path).
		Int("environments", len(st.Environments)).
		Msg("Loaded state")

	return s.state, nil
}

func (s *FileStore) fresh() *ProjectState {
	id := s.opts.ProjectID
	if id == "" {
		id = uuid.New().String()
	}
	return NewProjectState(id, s.opts.ProjectName, s.opts.Now().UTC())
}

// Save writes the state to disk. The file is written to a temporary file
// in the same directory, synced and renamed over the target so that
// readers never observe a partial document.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := writeFileAtomic(s.opts.Path, data); err != nil {
		return fmt.Errorf("failed to save state to %s: %w", s.opts.Path, err)
	}

	s.logger.Debug().Str("path", s.opts.Path).Int("bytes", len(data)).Msg("Saved state")
	return nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Refresh drops the in-memory copy so the next Load rereads the file.
func (s *FileStore) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
}

// GetOrCreateEnvironment returns the named environment, creating it bound
// to workspaceURL if absent. An existing environment keeps its URL.
func (s *FileStore) GetOrCreateEnvironment(name, workspaceURL string) (*EnvironmentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	if env, ok := st.Environments[name]; ok {
		return env, nil
	}

	env := NewEnvironmentState(workspaceURL)
	st.Environments[name] = env
	return env, nil
}

// Environment returns the named environment without creating it. A state
// that cannot be loaded has no environments.
func (s *FileStore) Environment(name string) (*EnvironmentState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load state")
		return nil, false
	}
	return st.Environment(name)
}
