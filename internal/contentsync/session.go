// Package contentsync loads and saves homepage sections against a remote
// content store. Remote payloads are merged onto compiled-in defaults so a
// page always has a complete document, and timestamps cross the wire in
// naive form while callers see ISO-8601.
package contentsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentworkforce/homepage/internal/content"
	"github.com/agentworkforce/homepage/internal/temporal"
	"go.uber.org/zap"
)

const (
	DefaultLoadTimeout = 8 * time.Second
	DefaultSaveTimeout = 15 * time.Second
)

type Options struct {
	Normalizer  temporal.Normalizer
	LoadTimeout time.Duration
	SaveTimeout time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

// SaveResult is what an editor shows after pressing save.
type SaveResult struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Fields   []string         `json:"fields,omitempty"`
	Document content.Document `json:"document,omitempty"`
}

type Session struct {
	client      RemoteClient
	normalizer  temporal.Normalizer
	loadTimeout time.Duration
	saveTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

func NewSession(client RemoteClient, opts Options) (*Session, error) {
	if client == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		client:      client,
		normalizer:  opts.Normalizer,
		loadTimeout: opts.LoadTimeout,
		saveTimeout: opts.SaveTimeout,
		now:         opts.Now,
		logger:      opts.Logger,
	}, nil
}

func (s *Session) Client() RemoteClient {
	return s.client
}

func (s *Session) Normalizer() temporal.Normalizer {
	return s.normalizer
}

// Defaults returns the section defaults with timestamps in display form.
func (s *Session) Defaults(name string) (content.Document, error) {
	section, err := s.document(name, "defaults")
	if err != nil {
		return nil, err
	}
	doc := section.Defaults()
	s.toDisplay(section, doc)
	return doc, nil
}

// Load fetches a section and merges it onto the defaults. A missing section,
// an unreadable payload or a failed envelope all yield the defaults; only
// transport failures are returned.
func (s *Session) Load(ctx context.Context, name string) (content.Document, error) {
	doc, _, err := s.load(ctx, name)
	return doc, err
}

// load is Load plus the body the store returned, nil for a missing section.
func (s *Session) load(ctx context.Context, name string) (content.Document, json.RawMessage, error) {
	section, err := s.document(name, "load")
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	raw, err := s.client.GetSection(ctx, section.Name)
	if err != nil {
		if !isNotFound(err) {
			return nil, nil, &Error{Kind: KindTransport, Op: "load", Section: section.Name, Err: err}
		}
		raw = nil
	}
	payload := s.unwrap(section.Name, raw)
	doc, mismatches := section.Merge(payload)
	s.logMismatches(section.Name, mismatches)
	s.toDisplay(section, doc)
	return doc, raw, nil
}

// Save validates doc, normalizes it to the section shape with naive
// timestamps and writes it. On success the stored document is re-read so the
// result reflects what the server holds.
func (s *Session) Save(ctx context.Context, name string, doc content.Document) (SaveResult, error) {
	section, err := s.document(name, "save")
	if err != nil {
		return SaveResult{Error: err.Error()}, err
	}
	if err := section.Validate(doc); err != nil {
		return s.validationFailure(section.Name, err)
	}

	merged, mismatches := section.Merge(doc)
	s.logMismatches(section.Name, mismatches)
	s.toWire(section, merged)

	ctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()

	err = s.client.PutSection(ctx, section.Name, merged)
	if isNotFound(err) {
		err = s.client.CreateSection(ctx, section.Name, merged)
	}
	if err != nil {
		serr := &Error{Kind: KindTransport, Op: "save", Section: section.Name, Err: err}
		s.logger.Warn("section save failed", zap.String("section", section.Name), zap.Error(err))
		return SaveResult{Error: serr.Error()}, serr
	}

	confirmed, err := s.Load(ctx, section.Name)
	if err != nil {
		return SaveResult{Error: err.Error()}, err
	}
	s.logger.Info("section saved", zap.String("section", section.Name))
	return SaveResult{Success: true, Document: confirmed}, nil
}

// LoadTestimonials fetches the testimonial list, merging every item onto the
// item defaults. A missing or unreadable list is empty.
func (s *Session) LoadTestimonials(ctx context.Context) ([]content.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	raw, err := s.client.ListTestimonials(ctx)
	if err != nil && !isNotFound(err) {
		return nil, &Error{Kind: KindTransport, Op: "load", Section: content.Testimonials.Name, Err: err}
	}
	payload := s.unwrap(content.Testimonials.Name, raw)
	items, mismatches := content.Testimonials.MergeItems(payload)
	s.logMismatches(content.Testimonials.Name, mismatches)
	for _, item := range items {
		s.toDisplay(content.Testimonials, item)
	}
	return items, nil
}

// SaveTestimonial creates item when it has no id and updates it otherwise.
// It returns the stored item as echoed by the server.
func (s *Session) SaveTestimonial(ctx context.Context, item content.Document) (content.Document, error) {
	section := content.Testimonials
	if err := section.Validate(item); err != nil {
		_, verr := s.validationFailure(section.Name, err)
		return nil, verr
	}
	merged, mismatches := section.Merge(item)
	s.logMismatches(section.Name, mismatches)
	id := strings.TrimSpace(merged.String("id"))
	s.toWire(section, merged)

	ctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()

	var (
		raw json.RawMessage
		err error
	)
	if id == "" {
		raw, err = s.client.CreateTestimonial(ctx, merged)
	} else {
		raw, err = s.client.UpdateTestimonial(ctx, id, merged)
	}
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "save", Section: section.Name, Err: err}
	}
	stored, mismatches := section.Merge(s.unwrap(section.Name, raw))
	s.logMismatches(section.Name, mismatches)
	if stored.String("id") == "" {
		stored.Set("id", id)
	}
	s.toDisplay(section, stored)
	return stored, nil
}

func (s *Session) DeleteTestimonial(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &Error{Kind: KindValidation, Op: "delete", Section: content.Testimonials.Name, Err: errors.New("id is required")}
	}
	ctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()
	if err := s.client.DeleteTestimonial(ctx, id); err != nil {
		return &Error{Kind: KindTransport, Op: "delete", Section: content.Testimonials.Name, Err: err}
	}
	return nil
}

func (s *Session) document(name, op string) (*content.Section, error) {
	section, ok := content.Lookup(strings.TrimSpace(name))
	if !ok {
		return nil, &Error{Kind: KindValidation, Op: op, Section: name, Err: ErrUnknownSection}
	}
	if section.IsList() {
		return nil, &Error{Kind: KindValidation, Op: op, Section: name, Err: fmt.Errorf("%s is a list section", section.Name)}
	}
	return section, nil
}

func (s *Session) validationFailure(section string, err error) (SaveResult, error) {
	result := SaveResult{Error: err.Error()}
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		result.Fields = verr.Fields
	}
	s.logger.Info("save blocked by validation",
		zap.String("section", section),
		zap.Strings("fields", result.Fields),
	)
	return result, &Error{Kind: KindValidation, Op: "save", Section: section, Err: err}
}

// unwrap peels the {success, content} envelope the store may return. A body
// that is not JSON, or an envelope reporting failure, is treated as absent.
func (s *Session) unwrap(section string, raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		s.logger.Warn("section payload unreadable, using defaults",
			zap.String("section", section),
			zap.Error(&Error{Kind: KindParse, Op: "load", Section: section, Err: err}),
		)
		return nil
	}
	envelope, ok := body.(map[string]any)
	if !ok {
		return body
	}
	inner, hasContent := envelope["content"]
	success, hasSuccess := envelope["success"]
	if !hasContent || (!hasSuccess && len(envelope) != 1) {
		return body
	}
	if ok, isBool := success.(bool); hasSuccess && isBool && !ok {
		s.logger.Warn("store reported failure, using defaults", zap.String("section", section))
		return nil
	}
	return inner
}

func (s *Session) logMismatches(section string, mismatches []content.Mismatch) {
	for _, m := range mismatches {
		s.logger.Debug("content shape mismatch",
			zap.String("section", section),
			zap.String("path", m.Path),
			zap.String("reason", m.Reason),
			zap.Error(ErrShapeMismatch),
		)
	}
}

func (s *Session) toDisplay(section *content.Section, doc content.Document) {
	now := s.now()
	for _, field := range section.Temporal {
		doc.Set(field.Path, s.normalizer.ToISO(doc.String(field.Path), now.Add(field.FallbackOffset)))
	}
}

func (s *Session) toWire(section *content.Section, doc content.Document) {
	now := s.now()
	for _, field := range section.Temporal {
		value := doc.String(field.Path)
		if value != "" && !s.normalizer.Valid(value) {
			s.logger.Warn("timestamp unreadable, using fallback",
				zap.String("section", section.Name),
				zap.String("path", field.Path),
				zap.String("value", value),
			)
		}
		doc.Set(field.Path, s.normalizer.ToNaive(value, now.Add(field.FallbackOffset)))
	}
}
