package contentsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentworkforce/homepage/internal/content"
	"go.uber.org/zap"
)

// ItemState tracks an optimistic edit of one testimonial.
type ItemState int

const (
	ItemClean ItemState = iota
	ItemPending
	ItemConfirmed
	ItemRolledBack
)

func (s ItemState) String() string {
	switch s {
	case ItemPending:
		return "pending"
	case ItemConfirmed:
		return "confirmed"
	case ItemRolledBack:
		return "rolled_back"
	default:
		return "clean"
	}
}

// TestimonialBoard holds the testimonial list an editor works on. Edits show
// up locally before the store confirms them. A failed remote write reloads
// the authoritative list, or restores the pre-edit snapshot when the reload
// fails too.
type TestimonialBoard struct {
	session *Session

	mu      sync.Mutex
	items   []content.Document
	states  map[string]ItemState
	pending int
}

func NewTestimonialBoard(session *Session) *TestimonialBoard {
	return &TestimonialBoard{session: session, states: map[string]ItemState{}}
}

// Refresh replaces the local list with the stored one.
func (b *TestimonialBoard) Refresh(ctx context.Context) error {
	items, err := b.session.LoadTestimonials(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.items = items
	b.states = map[string]ItemState{}
	b.mu.Unlock()
	return nil
}

// Items returns a copy of the local list.
func (b *TestimonialBoard) Items() []content.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]content.Document, len(b.items))
	for i, item := range b.items {
		out[i] = content.Clone(item)
	}
	return out
}

func (b *TestimonialBoard) State(id string) ItemState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[id]
}

// Add shows item under a temporary id until the store assigns the real one.
func (b *TestimonialBoard) Add(ctx context.Context, item content.Document) (content.Document, error) {
	if err := b.validate(item); err != nil {
		return nil, err
	}
	local, _ := content.Testimonials.Merge(item)

	b.mu.Lock()
	snapshot := b.snapshotLocked()
	b.pending++
	tempID := fmt.Sprintf("pending-%d", b.pending)
	local.Set("id", tempID)
	b.items = append(b.items, local)
	b.states[tempID] = ItemPending
	b.mu.Unlock()

	create := content.Clone(local)
	create.Set("id", "")
	stored, err := b.session.SaveTestimonial(ctx, create)
	if err != nil {
		b.rollback(ctx, tempID, snapshot, err)
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, tempID)
	id := stored.String("id")
	if idx := b.indexLocked(tempID); idx >= 0 {
		b.items[idx] = stored
	} else {
		b.items = append(b.items, stored)
	}
	b.states[id] = ItemConfirmed
	return content.Clone(stored), nil
}

// Update applies item locally by id, then writes it.
func (b *TestimonialBoard) Update(ctx context.Context, item content.Document) error {
	id := item.String("id")
	if id == "" {
		return &Error{Kind: KindValidation, Op: "update", Section: content.Testimonials.Name, Err: fmt.Errorf("id is required")}
	}
	if err := b.validate(item); err != nil {
		return err
	}
	local, _ := content.Testimonials.Merge(item)

	b.mu.Lock()
	idx := b.indexLocked(id)
	if idx < 0 {
		b.mu.Unlock()
		return &Error{Kind: KindValidation, Op: "update", Section: content.Testimonials.Name, Err: fmt.Errorf("testimonial %s not found", id)}
	}
	snapshot := b.snapshotLocked()
	b.items[idx] = local
	b.states[id] = ItemPending
	b.mu.Unlock()

	stored, err := b.session.SaveTestimonial(ctx, content.Clone(local))
	if err != nil {
		b.rollback(ctx, id, snapshot, err)
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.indexLocked(id); idx >= 0 {
		b.items[idx] = stored
	}
	b.states[id] = ItemConfirmed
	return nil
}

// SetFeatured toggles the featured flag of one testimonial.
func (b *TestimonialBoard) SetFeatured(ctx context.Context, id string, featured bool) error {
	b.mu.Lock()
	idx := b.indexLocked(id)
	if idx < 0 {
		b.mu.Unlock()
		return &Error{Kind: KindValidation, Op: "update", Section: content.Testimonials.Name, Err: fmt.Errorf("testimonial %s not found", id)}
	}
	item := content.Clone(b.items[idx])
	b.mu.Unlock()
	item.Set("isFeatured", featured)
	return b.Update(ctx, item)
}

// Remove drops the testimonial locally, then deletes it remotely.
func (b *TestimonialBoard) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	idx := b.indexLocked(id)
	if idx < 0 {
		b.mu.Unlock()
		return &Error{Kind: KindValidation, Op: "delete", Section: content.Testimonials.Name, Err: fmt.Errorf("testimonial %s not found", id)}
	}
	snapshot := b.snapshotLocked()
	b.items = append(b.items[:idx:idx], b.items[idx+1:]...)
	b.states[id] = ItemPending
	b.mu.Unlock()

	if err := b.session.DeleteTestimonial(ctx, id); err != nil {
		b.rollback(ctx, id, snapshot, err)
		return err
	}
	b.mu.Lock()
	b.states[id] = ItemConfirmed
	b.mu.Unlock()
	return nil
}

func (b *TestimonialBoard) validate(item content.Document) error {
	if err := content.Testimonials.Validate(item); err != nil {
		_, verr := b.session.validationFailure(content.Testimonials.Name, err)
		return verr
	}
	return nil
}

func (b *TestimonialBoard) rollback(ctx context.Context, id string, snapshot []content.Document, cause error) {
	logger := b.session.logger.With(zap.String("section", content.Testimonials.Name), zap.String("id", id))
	logger.Warn("testimonial write failed, rolling back", zap.Error(cause))

	items, err := b.session.LoadTestimonials(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		logger.Warn("reload after failed write failed, restoring snapshot", zap.Error(err))
		b.items = snapshot
	} else {
		b.items = items
	}
	b.states[id] = ItemRolledBack
}

func (b *TestimonialBoard) snapshotLocked() []content.Document {
	out := make([]content.Document, len(b.items))
	for i, item := range b.items {
		out[i] = content.Clone(item)
	}
	return out
}

func (b *TestimonialBoard) indexLocked(id string) int {
	for i, item := range b.items {
		if item.String("id") == id {
			return i
		}
	}
	return -1
}
