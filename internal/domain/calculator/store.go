package calculator

import (
	"io/fs"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type snapshot struct {
	schemas  map[string]*Schema
	ids      []string
	loadedAt time.Time
}

// Store holds the loaded calculator schemas. Readers always see one complete
// snapshot; Reload builds a new snapshot and swaps it in only on success.
type Store struct {
	fsys    fs.FS
	logger  zerolog.Logger
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
}

// NewStore loads every schema from fsys. A load failure is returned and no
// store is created.
func NewStore(fsys fs.FS, logger zerolog.Logger) (*Store, error) {
	s := &Store{fsys: fsys, logger: logger}
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

func newSnapshot(schemas map[string]*Schema) *snapshot {
	ids := make([]string, 0, len(schemas))
	for id := range schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &snapshot{schemas: schemas, ids: ids, loadedAt: time.Now().UTC()}
}

func (s *Store) load() (*snapshot, error) {
	schemas, err := LoadSchemas(s.fsys)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(schemas)
	for _, id := range snap.ids {
		for _, w := range Lint(schemas[id]) {
			s.logger.Warn().Str("calculator", id).Msg(w)
		}
	}
	return snap, nil
}

// Reload re-reads the repository. On failure the previous snapshot stays in
// place and the error is returned.
func (s *Store) Reload() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		s.logger.Error().Err(err).Msg("calculator reload failed, keeping previous schemas")
		return s.Len(), err
	}
	s.current.Store(snap)
	s.logger.Info().Int("calculators", len(snap.ids)).Msg("calculator schemas reloaded")
	return len(snap.ids), nil
}

// Get returns the schema with the given id.
func (s *Store) Get(id string) (*Schema, bool) {
	sc, ok := s.current.Load().schemas[id]
	return sc, ok
}

// List returns all schemas ordered by id.
func (s *Store) List() []*Schema {
	snap := s.current.Load()
	out := make([]*Schema, 0, len(snap.ids))
	for _, id := range snap.ids {
		out = append(out, snap.schemas[id])
	}
	return out
}

// Len returns the number of loaded schemas.
func (s *Store) Len() int {
	return len(s.current.Load().ids)
}

// LoadedAt reports when the current snapshot was built.
func (s *Store) LoadedAt() time.Time {
	return s.current.Load().loadedAt
}
