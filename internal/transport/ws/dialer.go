package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"quizroom/internal/domain"
	"quizroom/internal/transport"
)

// Resolver looks up the base URL of the server hosting a room.
type Resolver interface {
	Resolve(ctx context.Context, roomCode string) (string, error)
}

// Dialer connects to /rooms/:code/ws on BaseURL, or on the URL the Resolver
// returns for the room when BaseURL is empty.
type Dialer struct {
	BaseURL  string
	Resolver Resolver
	Logger   *slog.Logger
}

func (d *Dialer) Dial(ctx context.Context, address string) (transport.Channel, error) {
	code, err := domain.NormalizeRoomCode(address)
	if err != nil {
		return nil, err
	}
	base := d.BaseURL
	if base == "" && d.Resolver != nil {
		if base, err = d.Resolver.Resolve(ctx, code); err != nil {
			return nil, fmt.Errorf("resolve room %s: %w", code, err)
		}
	}
	if base == "" {
		return nil, fmt.Errorf("dial %s: no server address: %w", code, domain.ErrRoomNotFound)
	}

	u := websocketURL(base) + "/rooms/" + code + "/ws"
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("dial %s: %w", code, domain.ErrRoomNotFound)
		}
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("dial %s: handshake status %d", code, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", code, err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := newConn(code, ws, logger)
	c.start()
	return c, nil
}

func websocketURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
		return base
	}
	return "ws://" + base
}
