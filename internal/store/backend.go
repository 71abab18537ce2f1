package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Snapshot is the full persisted state.
type Snapshot struct {
	Sections     map[string]SectionRecord  `json:"sections"`
	Testimonials map[string]map[string]any `json:"testimonials"`
}

// StateBackend loads and saves whole snapshots. Load returns nil, nil when
// nothing has been saved yet.
type StateBackend interface {
	Load() (*Snapshot, error)
	Save(state *Snapshot) error
}

type stateBackendCloser interface {
	Close() error
}

type InMemoryStateBackend struct {
	mu       sync.Mutex
	snapshot *Snapshot
}

func NewInMemoryStateBackend() *InMemoryStateBackend {
	return &InMemoryStateBackend{}
}

func (b *InMemoryStateBackend) Load() (*Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, nil
	}
	return cloneSnapshot(b.snapshot)
}

func (b *InMemoryStateBackend) Save(state *Snapshot) error {
	if b == nil || state == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	clone, err := cloneSnapshot(state)
	if err != nil {
		return err
	}
	b.snapshot = clone
	return nil
}

type JSONFileStateBackend struct {
	Path string
}

func NewJSONFileStateBackend(path string) *JSONFileStateBackend {
	return &JSONFileStateBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileStateBackend) Load() (*Snapshot, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSnapshot(data)
}

func (b *JSONFileStateBackend) Save(state *Snapshot) error {
	if b == nil || strings.TrimSpace(b.Path) == "" || state == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}

// BuildStateBackendFromDSN picks a backend by DSN scheme. A bare path means a
// JSON file; an empty DSN returns nil.
func BuildStateBackendFromDSN(dsn string) (StateBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupStateBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileStateBackend(path), nil
	case "memory", "mem", "inmem":
		return NewInMemoryStateBackend(), nil
	case "postgres", "postgresql":
		return NewPostgresStateBackend(dsn)
	case "sqlite", "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteStateBackend(path)
	case "redis", "rediss":
		return NewRedisStateBackend(dsn)
	case "mysql":
		return nil, fmt.Errorf("%w: state backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported state backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if parsed.Host != "" && path != "" {
		path = filepath.Join(parsed.Host, path)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}

func encodeSnapshot(state *Snapshot) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Sections == nil {
		snapshot.Sections = map[string]SectionRecord{}
	}
	if snapshot.Testimonials == nil {
		snapshot.Testimonials = map[string]map[string]any{}
	}
	return &snapshot, nil
}

func cloneSnapshot(state *Snapshot) (*Snapshot, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}
