package contentsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/homepage/internal/content"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	DefaultMirrorInterval = 30 * time.Second
	mirrorDebounce        = 250 * time.Millisecond
	mirrorStateName       = ".homepage-mirror-state.json"
)

type MirrorOptions struct {
	Dir       string
	StateFile string
	// Sections defaults to every single-document section.
	Sections    []string
	Interval    time.Duration
	Jitter      float64
	SyncTimeout time.Duration
}

// Mirror keeps one JSON file per section in a local directory. Local edits
// are validated and saved; remote changes overwrite files that have no
// pending local edit.
type Mirror struct {
	session   *Session
	dir       string
	stateFile string
	sections  []string
	opts      MirrorOptions
	logger    *zap.Logger

	mu     sync.Mutex
	state  mirrorState
	loaded bool
}

type mirrorState struct {
	Files map[string]trackedFile `json:"files"`
}

type trackedFile struct {
	// Hash is the digest of the file as last written or pushed.
	Hash string `json:"hash"`
	// Rejected is the digest of a local edit that failed parsing or
	// validation. It is not retried until the file changes again.
	Rejected string `json:"rejected,omitempty"`
	// Remote is the digest of the store response the file was built from.
	// Defaults and fallback timestamps make the rendered file differ between
	// loads of the same response, so pulls compare this instead.
	Remote   string `json:"remote,omitempty"`
	SyncedAt string `json:"syncedAt,omitempty"`
}

func NewMirror(session *Session, opts MirrorOptions) (*Mirror, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	dirRaw := strings.TrimSpace(opts.Dir)
	if dirRaw == "" {
		return nil, fmt.Errorf("mirror directory is required")
	}
	dir := filepath.Clean(dirRaw)
	sections := opts.Sections
	if len(sections) == 0 {
		for _, s := range content.Sections() {
			if !s.IsList() {
				sections = append(sections, s.Name)
			}
		}
	}
	for _, name := range sections {
		if _, err := session.document(name, "mirror"); err != nil {
			return nil, err
		}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultMirrorInterval
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSaveTimeout + DefaultLoadTimeout
	}
	opts.Jitter = clampJitterRatio(opts.Jitter)
	stateFile := strings.TrimSpace(opts.StateFile)
	if stateFile == "" {
		stateFile = filepath.Join(dir, mirrorStateName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Mirror{
		session:   session,
		dir:       dir,
		stateFile: stateFile,
		sections:  sections,
		opts:      opts,
		logger:    session.logger.With(zap.String("mirror", dir)),
		state:     mirrorState{Files: map[string]trackedFile{}},
	}, nil
}

func (m *Mirror) Path(section string) string {
	return filepath.Join(m.dir, section+".json")
}

// SyncOnce pushes local edits and then pulls every section without a
// pending local edit.
func (m *Mirror) SyncOnce(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadState(); err != nil {
		return err
	}
	var errs []error
	held := map[string]struct{}{}
	for _, name := range m.sections {
		hold, err := m.pushLocal(ctx, name)
		if err != nil {
			errs = append(errs, err)
		}
		if hold {
			held[name] = struct{}{}
		}
	}
	for _, name := range m.sections {
		if _, ok := held[name]; ok {
			continue
		}
		if err := m.pullRemote(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.saveState(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// pushLocal saves a locally edited file. hold reports that the file carries
// an edit the remote copy must not overwrite.
func (m *Mirror) pushLocal(ctx context.Context, name string) (hold bool, err error) {
	path := m.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	hash := hashBytes(data)
	tracked, ok := m.state.Files[name]
	if ok && hash == tracked.Hash {
		return false, nil
	}
	if hash == tracked.Rejected {
		return true, nil
	}

	var doc content.Document
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		if err == nil {
			err = errors.New("file does not hold a JSON object")
		}
		m.logger.Warn("local section file unreadable, keeping it until fixed",
			zap.String("section", name),
			zap.Error(&Error{Kind: KindParse, Op: "mirror", Section: name, Err: err}),
		)
		tracked.Rejected = hash
		m.state.Files[name] = tracked
		return true, nil
	}

	result, err := m.session.Save(ctx, name, doc)
	if err != nil {
		if KindOf(err) == KindValidation {
			m.logger.Warn("local section edit rejected",
				zap.String("section", name),
				zap.Strings("fields", result.Fields),
			)
			tracked.Rejected = hash
			m.state.Files[name] = tracked
			return true, nil
		}
		return true, err
	}
	if err := m.writeSection(name, result.Document, ""); err != nil {
		return true, err
	}
	m.logger.Info("pushed local section edit", zap.String("section", name))
	return false, nil
}

func (m *Mirror) pullRemote(ctx context.Context, name string) error {
	doc, raw, err := m.session.load(ctx, name)
	if err != nil {
		return err
	}
	remote := hashBytes(raw)
	if tracked, ok := m.state.Files[name]; ok && tracked.Remote == remote {
		if _, statErr := os.Stat(m.Path(name)); statErr == nil {
			return nil
		}
	}
	if err := m.writeSection(name, doc, remote); err != nil {
		return err
	}
	m.logger.Debug("pulled remote section", zap.String("section", name))
	return nil
}

// writeSection replaces the section file. remote is empty when the file was
// not rendered from a fresh store response.
func (m *Mirror) writeSection(name string, doc content.Document, remote string) error {
	data, err := doc.MarshalIndent()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(m.Path(name), data, 0o644); err != nil {
		return err
	}
	m.state.Files[name] = trackedFile{
		Hash:     hashBytes(data),
		Remote:   remote,
		SyncedAt: m.session.now().UTC().Format(time.RFC3339),
	}
	return nil
}

// Run syncs once, then again whenever a section file changes and on every
// interval, until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}

	m.syncLogged(ctx)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(jitteredIntervalWithSample(m.opts.Interval, m.opts.Jitter, rng.Float64()))
	defer timer.Stop()
	debounce := time.NewTimer(mirrorDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if m.watches(event) && !m.unchanged(event.Name) {
				debounce.Reset(mirrorDebounce)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("mirror watcher error", zap.Error(werr))
		case <-debounce.C:
			m.syncLogged(ctx)
		case <-timer.C:
			m.syncLogged(ctx)
			timer.Reset(jitteredIntervalWithSample(m.opts.Interval, m.opts.Jitter, rng.Float64()))
		}
	}
}

func (m *Mirror) watches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	for _, name := range m.sections {
		if base == name+".json" {
			return true
		}
	}
	return false
}

// unchanged reports whether path still holds exactly what the mirror last
// wrote, which is the case for events caused by the mirror itself.
func (m *Mirror) unchanged(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	m.mu.Lock()
	defer m.mu.Unlock()
	tracked, ok := m.state.Files[name]
	return ok && tracked.Hash == hashBytes(data)
}

func (m *Mirror) syncLogged(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.SyncTimeout)
	defer cancel()
	if err := m.SyncOnce(ctx); err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("mirror sync cycle failed", zap.Error(err))
		}
		return
	}
	m.logger.Debug("mirror sync cycle completed")
}

func (m *Mirror) loadState() error {
	if m.loaded {
		return nil
	}
	m.loaded = true
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.state.Files = map[string]trackedFile{}
			return nil
		}
		return err
	}
	var state mirrorState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.Files == nil {
		state.Files = map[string]trackedFile{}
	}
	m.state = state
	return nil
}

func (m *Mirror) saveState() error {
	data, err := json.Marshal(m.state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.stateFile), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(m.stateFile, data, 0o644)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
