package contentsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/agentworkforce/homepage/internal/content"
)

type fakeWrite struct {
	method  string
	section string
	doc     content.Document
}

type fakeClient struct {
	mu sync.Mutex

	sections    map[string]json.RawMessage
	getErr      error
	putErr      error
	putNotFound bool
	block       bool
	getCalls    int
	writes      []fakeWrite

	testimonials []map[string]any
	listErr      error
	writeErr     error
	nextID       int
}

func newFakeClient() *fakeClient {
	return &fakeClient{sections: map[string]json.RawMessage{}}
}

func (c *fakeClient) setSection(section, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections[section] = json.RawMessage(raw)
}

func (c *fakeClient) setGetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getErr = err
}

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCalls
}

func (c *fakeClient) recorded() []fakeWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fakeWrite(nil), c.writes...)
}

func (c *fakeClient) GetSection(ctx context.Context, section string) (json.RawMessage, error) {
	c.mu.Lock()
	c.getCalls++
	block, err := c.block, c.getErr
	raw, ok := c.sections[section]
	c.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &HTTPError{StatusCode: http.StatusNotFound, Code: "not_found", Message: "section not found"}
	}
	return raw, nil
}

func (c *fakeClient) PutSection(ctx context.Context, section string, doc any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	if c.putNotFound {
		if _, ok := c.sections[section]; !ok {
			return &HTTPError{StatusCode: http.StatusNotFound, Code: "not_found", Message: "section not found"}
		}
	}
	return c.storeLocked(http.MethodPut, section, doc)
}

func (c *fakeClient) CreateSection(ctx context.Context, section string, doc any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	return c.storeLocked(http.MethodPost, section, doc)
}

func (c *fakeClient) storeLocked(method, section string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var written content.Document
	if err := json.Unmarshal(data, &written); err != nil {
		return err
	}
	c.writes = append(c.writes, fakeWrite{method: method, section: section, doc: written})
	envelope, err := json.Marshal(map[string]any{"success": true, "content": json.RawMessage(data)})
	if err != nil {
		return err
	}
	c.sections[section] = envelope
	return nil
}

func (c *fakeClient) ListTestimonials(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	items := c.testimonials
	if items == nil {
		items = []map[string]any{}
	}
	return json.Marshal(map[string]any{"success": true, "content": items})
}

func (c *fakeClient) CreateTestimonial(ctx context.Context, item any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return nil, c.writeErr
	}
	stored, err := toMap(item)
	if err != nil {
		return nil, err
	}
	c.nextID++
	stored["id"] = fmt.Sprintf("t-%d", c.nextID)
	stored["createdAt"] = "2025-01-01 10:00:00"
	stored["updatedAt"] = "2025-01-01 10:00:00"
	c.testimonials = append(c.testimonials, stored)
	return json.Marshal(map[string]any{"success": true, "content": stored})
}

func (c *fakeClient) UpdateTestimonial(ctx context.Context, id string, item any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return nil, c.writeErr
	}
	stored, err := toMap(item)
	if err != nil {
		return nil, err
	}
	for i, existing := range c.testimonials {
		if existing["id"] == id {
			stored["id"] = id
			stored["updatedAt"] = "2025-01-02 10:00:00"
			c.testimonials[i] = stored
			return json.Marshal(stored)
		}
	}
	return nil, &HTTPError{StatusCode: http.StatusNotFound, Message: "testimonial not found"}
}

func (c *fakeClient) DeleteTestimonial(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	for i, existing := range c.testimonials {
		if existing["id"] == id {
			c.testimonials = append(c.testimonials[:i], c.testimonials[i+1:]...)
			return nil
		}
	}
	return &HTTPError{StatusCode: http.StatusNotFound, Message: "testimonial not found"}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// eventClient adds a push channel so pollers can subscribe.
type eventClient struct {
	*fakeClient
	events chan SectionEvent
}

func (c *eventClient) Subscribe(ctx context.Context, fn func(SectionEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			fn(ev)
		}
	}
}
