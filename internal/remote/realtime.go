package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const pingInterval = 20 * time.Second

// Event is a change notification from the realtime channel.
type Event struct {
	Events    []string `json:"events"`
	Channels  []string `json:"channels"`
	Timestamp string   `json:"timestamp"`
	Payload   Document `json:"payload"`
}

func (e Event) has(suffix string) bool {
	for _, name := range e.Events {
		if strings.Contains(name, suffix) {
			return true
		}
	}
	return false
}

// IsUpdate reports an update event.
func (e Event) IsUpdate() bool { return e.has(".update") }

// IsCreate reports a create event.
func (e Event) IsCreate() bool { return e.has(".create") }

// IsDelete reports a delete event.
func (e Event) IsDelete() bool { return e.has(".delete") }

// DocumentsChannel names the channel carrying every document change in a collection.
func DocumentsChannel(database, collection string) string {
	return fmt.Sprintf("databases.%s.collections.%s.documents", database, collection)
}

type realtimeMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type realtimeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// realtimeURL derives the websocket endpoint from the REST endpoint.
func (c *Client) realtimeURL(channels []string) (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime"
	q := url.Values{}
	q.Set("project", c.Project)
	for _, ch := range channels {
		q.Add("channels[]", ch)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe streams change events on channels to fn until ctx is done or the
// connection fails. fn runs on the reading goroutine; it should not block.
// A nil return means ctx was cancelled.
func (c *Client) Subscribe(ctx context.Context, channels []string, fn func(Event)) error {
	if len(channels) == 0 {
		return errors.New("subscribe: no channels")
	}
	endpoint, err := c.realtimeURL(channels)
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.Project != "" {
		header.Set("X-Appwrite-Project", c.Project)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	if c.Session != "" {
		auth := map[string]any{"type": "authentication", "data": map[string]string{"session": c.Session}}
		if err := write(auth); err != nil {
			conn.Close()
			return fmt.Errorf("authenticate realtime: %w", err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				writeMu.Lock()
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				writeMu.Unlock()
				conn.Close()
				return
			case <-done:
				conn.Close()
				return
			case <-ticker.C:
				if err := write(map[string]string{"type": "ping"}); err != nil {
					slog.Debug("realtime: ping", "err", err)
				}
			}
		}
	}()

	for {
		var msg realtimeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read realtime: %w", err)
		}
		switch msg.Type {
		case "event":
			var ev Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				slog.Debug("realtime: bad event", "err", err)
				continue
			}
			fn(ev)
		case "error":
			var re realtimeError
			json.Unmarshal(msg.Data, &re)
			return fmt.Errorf("realtime error %d: %s", re.Code, re.Message)
		}
	}
}
