package contentsync

import (
	"context"
	"errors"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// SectionEvent is pushed by the store whenever a section or testimonial
// changes.
type SectionEvent struct {
	Type    string `json:"type"`
	Section string `json:"section"`
	ID      string `json:"id,omitempty"`
	At      string `json:"at"`
}

// Subscribe streams change events until ctx is done or the connection drops.
func (c *HTTPClient) Subscribe(ctx context.Context, fn func(SectionEvent)) error {
	conn, _, err := websocket.Dial(ctx, eventsURL(c.baseURL), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		var ev SectionEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errors.New("event stream closed by server")
			}
			return err
		}
		fn(ev)
	}
}

func eventsURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		baseURL = "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		baseURL = "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL + "/homepage/events"
}
