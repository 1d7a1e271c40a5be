package websocket

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/knowledge-bank/kb-cloud/logger"
)

const (
	// Initial delay before first reconnection attempt
	initialReconnectDelay = 1 * time.Second
	// Maximum delay between reconnection attempts
	maxReconnectDelay = 30 * time.Second
	// Factor to multiply delay after each failed attempt
	reconnectDelayMultiplier = 2
)

// Event is a decoded message from /api/events.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
	MessageID string          `json:"messageId,omitempty"`
}

// Subscriber follows an event stream and reconnects with exponential
// backoff when the connection drops.
type Subscriber struct {
	url    string
	dialer *websocket.Dialer
	log    *logger.Logger

	// MaxAttempts bounds consecutive failed dials; 0 retries forever.
	MaxAttempts int
	// InitialDelay and MaxDelay shape the reconnect backoff.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnConnect, if set, runs after every successful dial.
	OnConnect func()
}

// NewSubscriber accepts ws(s):// or http(s):// URLs; http schemes are
// switched to their websocket equivalent.
func NewSubscriber(rawURL string, log *logger.Logger) (*Subscriber, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, ErrBadURL
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Subscriber{
		url:          u.String(),
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:          log.WithField("component", "subscriber"),
		InitialDelay: initialReconnectDelay,
		MaxDelay:     maxReconnectDelay,
	}, nil
}

// URL is the websocket URL being followed.
func (s *Subscriber) URL() string { return s.url }

// Run delivers events to handle until ctx is cancelled or MaxAttempts
// consecutive dials fail.
func (s *Subscriber) Run(ctx context.Context, handle func(Event)) error {
	delay := s.InitialDelay
	failures := 0

	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			s.log.Warnf("connect attempt %d to %s failed: %v", failures, s.url, err)
			if s.MaxAttempts > 0 && failures >= s.MaxAttempts {
				return ErrMaxReconnectAttemptsReached
			}
		} else {
			failures = 0
			delay = s.InitialDelay
			s.log.Infof("connected to %s", s.url)
			if s.OnConnect != nil {
				s.OnConnect()
			}
			if err := s.read(ctx, conn, handle); err != nil {
				s.log.Warnf("stream closed: %v", err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= reconnectDelayMultiplier
		if delay > s.MaxDelay {
			delay = s.MaxDelay
		}
	}
}

func (s *Subscriber) read(ctx context.Context, conn *websocket.Conn, handle func(Event)) error {
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		case <-readDone:
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warnf("skipping undecodable message: %v", err)
			continue
		}
		handle(ev)
	}
}

