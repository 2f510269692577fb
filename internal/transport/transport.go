// Package transport multiplexes named events over one websocket connection.
//
// Outbound events are written as {"eventName": ..., "arguments": [...]}.
// Inbound events are dispatched to the single handler registered for their
// name; events nobody registered for are logged and dropped.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/webrtc-broadcast/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// Conn is the subset of *websocket.Conn the transport relies on.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Args holds the positional arguments of one inbound event.
type Args []json.RawMessage

// Decode unmarshals the leading arguments into dst, in order.
func (a Args) Decode(dst ...any) error {
	if len(a) < len(dst) {
		return fmt.Errorf("%w: want %d, got %d", ErrMissingArgument, len(dst), len(a))
	}
	for i, d := range dst {
		if err := json.Unmarshal(a[i], d); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}

// Handler consumes one inbound event.
type Handler func(args Args) error

type Transport struct {
	conn    Conn
	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string]Handler

	closeOnce sync.Once
	closed    chan struct{}

	log zerolog.Logger
}

func New(conn Conn) *Transport {
	return &Transport{
		conn:     conn,
		handlers: make(map[string]Handler),
		closed:   make(chan struct{}),
		log:      log.With().Str("component", "transport").Logger(),
	}
}

// Dial connects to the relay at url.
func Dial(ctx context.Context, url string) (*Transport, error) {
	log.Info().Str("url", url).Msg("Connecting to signaling relay")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrClosed, url, err)
	}

	log.Info().Str("url", url).Msg("Connected to signaling relay")
	return New(conn), nil
}

// On registers h for eventName, replacing any earlier registration.
func (t *Transport) On(eventName string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[eventName] = h
}

// Emit sends one event. Safe for concurrent use.
func (t *Transport) Emit(eventName string, args ...any) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}

	ev, err := models.NewEvent(eventName, args...)
	if err != nil {
		return fmt.Errorf("encode %q: %w", eventName, err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %q: %w", eventName, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrClosed, eventName, err)
	}

	t.log.Debug().Str("event", eventName).Msg("Event sent")
	return nil
}

// Run reads and dispatches inbound events until the connection drops or ctx
// is cancelled. A dropped connection is reported as ErrClosed.
func (t *Transport) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.closed:
		}
	}()

	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
				t.log.Info().Msg("Disconnected from signaling relay")
				return ctx.Err()
			default:
			}
			t.Close()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Error().Err(err).Msg("Signaling connection lost")
			}
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}

		if err := t.dispatch(msg); err != nil {
			var unknown *UnknownEventError
			if errors.As(err, &unknown) {
				t.log.Warn().Str("event", unknown.EventName).Msg("Ignoring unhandled event")
				continue
			}
			t.log.Error().Err(err).Msg("Failed to handle event")
		}
	}
}

func (t *Transport) dispatch(msg []byte) error {
	var ev models.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev.EventName == "" {
		return fmt.Errorf("%w: missing eventName", ErrMalformedEvent)
	}

	t.mu.RLock()
	h, ok := t.handlers[ev.EventName]
	t.mu.RUnlock()
	if !ok {
		return &UnknownEventError{EventName: ev.EventName}
	}

	t.log.Debug().Str("event", ev.EventName).Int("args", len(ev.Arguments)).Msg("Event received")
	if err := h(Args(ev.Arguments)); err != nil {
		return fmt.Errorf("handle %q: %w", ev.EventName, err)
	}
	return nil
}

// Close shuts the connection. It is safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// Done is closed once the transport is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.closed
}
