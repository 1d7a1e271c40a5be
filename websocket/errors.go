package websocket

import "errors"

// Common websocket errors
var (
	// ErrHubStopped is returned when registering with a hub that is no longer running
	ErrHubStopped = errors.New("websocket: hub stopped")

	// ErrMaxReconnectAttemptsReached is returned when max reconnection attempts are exceeded
	ErrMaxReconnectAttemptsReached = errors.New("websocket: max reconnection attempts reached")

	// ErrBadURL is returned for subscriber URLs that are not ws, wss, http or https
	ErrBadURL = errors.New("websocket: url must be ws, wss, http or https")
)
