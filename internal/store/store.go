// Package store is the reference homepage content store. It keeps section
// documents opaque, assigns testimonial ids and timestamps, persists
// snapshots through a pluggable StateBackend and fans out change events.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/homepage/internal/temporal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrNotImplemented = errors.New("not implemented")
)

const (
	EventSectionUpdated     = "section.updated"
	EventTestimonialCreated = "testimonial.created"
	EventTestimonialUpdated = "testimonial.updated"
	EventTestimonialDeleted = "testimonial.deleted"

	TestimonialsSection = "testimonials"
)

var sectionNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

var reservedSections = map[string]struct{}{
	TestimonialsSection: {},
	"events":            {},
}

type SectionRecord struct {
	Content   json.RawMessage `json:"content"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Event is published after every successful mutation.
type Event struct {
	Type    string `json:"type"`
	Section string `json:"section"`
	ID      string `json:"id,omitempty"`
	At      string `json:"at"`
}

type Options struct {
	Backend StateBackend
	Now     func() time.Time
	NewID   func() string
	Logger  *zap.Logger
}

type Store struct {
	mu           sync.RWMutex
	sections     map[string]SectionRecord
	testimonials map[string]map[string]any

	backend StateBackend
	now     func() time.Time
	newID   func() string
	logger  *zap.Logger

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

func New(opts Options) (*Store, error) {
	if opts.Backend == nil {
		opts.Backend = NewInMemoryStateBackend()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Store{
		sections:     map[string]SectionRecord{},
		testimonials: map[string]map[string]any{},
		backend:      opts.Backend,
		now:          opts.Now,
		newID:        opts.NewID,
		logger:       opts.Logger,
		subs:         map[int]chan Event{},
	}
	snapshot, err := opts.Backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if snapshot != nil {
		for name, rec := range snapshot.Sections {
			s.sections[name] = rec
		}
		for id, item := range snapshot.Testimonials {
			s.testimonials[id] = item
		}
		s.logger.Info("state restored",
			zap.Int("sections", len(s.sections)),
			zap.Int("testimonials", len(s.testimonials)),
		)
	}
	return s, nil
}

func ValidSectionName(name string) bool {
	if _, reserved := reservedSections[name]; reserved {
		return false
	}
	return sectionNamePattern.MatchString(name)
}

func (s *Store) GetSection(name string) (SectionRecord, error) {
	if !ValidSectionName(name) {
		return SectionRecord{}, ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sections[name]
	if !ok {
		return SectionRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// PutSection stores content under name, replacing any previous document.
func (s *Store) PutSection(name string, content json.RawMessage) (SectionRecord, error) {
	return s.writeSection(name, content, false)
}

// CreateSection stores content under name and fails with ErrConflict if the
// section already exists.
func (s *Store) CreateSection(name string, content json.RawMessage) (SectionRecord, error) {
	return s.writeSection(name, content, true)
}

func (s *Store) writeSection(name string, content json.RawMessage, create bool) (SectionRecord, error) {
	if !ValidSectionName(name) {
		return SectionRecord{}, ErrInvalidInput
	}
	content = bytes.TrimSpace(content)
	if len(content) == 0 || !json.Valid(content) {
		return SectionRecord{}, ErrInvalidInput
	}
	s.mu.Lock()
	previous, existed := s.sections[name]
	if create && existed {
		s.mu.Unlock()
		return SectionRecord{}, ErrConflict
	}
	rec := SectionRecord{
		Content:   append(json.RawMessage(nil), content...),
		UpdatedAt: s.now().UTC(),
	}
	s.sections[name] = rec
	if err := s.persistLocked(); err != nil {
		if existed {
			s.sections[name] = previous
		} else {
			delete(s.sections, name)
		}
		s.mu.Unlock()
		return SectionRecord{}, err
	}
	s.mu.Unlock()
	s.publish(Event{Type: EventSectionUpdated, Section: name, At: rec.UpdatedAt.Format(time.RFC3339)})
	return cloneRecord(rec), nil
}

// ListTestimonials returns every testimonial ordered by createdAt, then id.
func (s *Store) ListTestimonials() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, 0, len(s.testimonials))
	for _, item := range s.testimonials {
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := stringField(out[i], "createdAt"), stringField(out[j], "createdAt")
		if ci != cj {
			return ci < cj
		}
		return stringField(out[i], "id") < stringField(out[j], "id")
	})
	return out
}

func (s *Store) GetTestimonial(id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.testimonials[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(item), nil
}

// CreateTestimonial stores item under a new id and stamps createdAt and
// updatedAt in naive form.
func (s *Store) CreateTestimonial(item map[string]any) (map[string]any, error) {
	if item == nil {
		return nil, ErrInvalidInput
	}
	stored := cloneItem(item)
	stamp := s.now().UTC().Format(temporal.NaiveLayout)
	id := s.newID()
	stored["id"] = id
	stored["createdAt"] = stamp
	stored["updatedAt"] = stamp

	s.mu.Lock()
	s.testimonials[id] = stored
	if err := s.persistLocked(); err != nil {
		delete(s.testimonials, id)
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	s.publish(Event{Type: EventTestimonialCreated, Section: TestimonialsSection, ID: id, At: stamp})
	return cloneItem(stored), nil
}

// UpdateTestimonial replaces the stored item. The id and createdAt of the
// existing record are kept.
func (s *Store) UpdateTestimonial(id string, item map[string]any) (map[string]any, error) {
	id = strings.TrimSpace(id)
	if id == "" || item == nil {
		return nil, ErrInvalidInput
	}
	s.mu.Lock()
	previous, ok := s.testimonials[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	stored := cloneItem(item)
	stamp := s.now().UTC().Format(temporal.NaiveLayout)
	stored["id"] = id
	stored["createdAt"] = previous["createdAt"]
	stored["updatedAt"] = stamp
	s.testimonials[id] = stored
	if err := s.persistLocked(); err != nil {
		s.testimonials[id] = previous
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	s.publish(Event{Type: EventTestimonialUpdated, Section: TestimonialsSection, ID: id, At: stamp})
	return cloneItem(stored), nil
}

func (s *Store) DeleteTestimonial(id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	previous, ok := s.testimonials[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.testimonials, id)
	if err := s.persistLocked(); err != nil {
		s.testimonials[id] = previous
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.publish(Event{Type: EventTestimonialDeleted, Section: TestimonialsSection, ID: id, At: s.now().UTC().Format(temporal.NaiveLayout)})
	return nil
}

// Subscribe returns a channel of change events and a cancel function. Slow
// subscribers miss events rather than block writers.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("dropping event for slow subscriber", zap.String("type", ev.Type))
		}
	}
}

// Close ends every subscription and releases the backend.
func (s *Store) Close() error {
	s.subMu.Lock()
	if !s.closed {
		s.closed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
	}
	s.subMu.Unlock()
	if closer, ok := s.backend.(stateBackendCloser); ok {
		return closer.Close()
	}
	return nil
}

func (s *Store) persistLocked() error {
	snapshot := &Snapshot{
		Sections:     make(map[string]SectionRecord, len(s.sections)),
		Testimonials: make(map[string]map[string]any, len(s.testimonials)),
	}
	for name, rec := range s.sections {
		snapshot.Sections[name] = rec
	}
	for id, item := range s.testimonials {
		snapshot.Testimonials[id] = item
	}
	if err := s.backend.Save(snapshot); err != nil {
		s.logger.Error("persist state failed", zap.Error(err))
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func cloneRecord(rec SectionRecord) SectionRecord {
	rec.Content = append(json.RawMessage(nil), rec.Content...)
	return rec
}

func cloneItem(item map[string]any) map[string]any {
	data, err := json.Marshal(item)
	if err != nil {
		out := make(map[string]any, len(item))
		for k, v := range item {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

func stringField(item map[string]any, key string) string {
	v, _ := item[key].(string)
	return v
}
