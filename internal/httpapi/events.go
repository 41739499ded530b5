// ABOUTME: Websocket stream of transcript appends for one session
// ABOUTME: Subscribes to the store notifier; unsubscribes when the socket closes

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/parley-chat/parley/internal/store"
)

// eventJSON is one streamed transcript change.
type eventJSON struct {
	Kind    string     `json:"kind"`
	Message *entryWire `json:"message,omitempty"`
}

type entryWire struct {
	ID        string           `json:"id,omitempty"`
	Sender    string           `json:"sender"`
	Text      string           `json:"text,omitempty"`
	ChainMeta *store.ChainMeta `json:"chain_meta,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// handleEvents streams transcript appends over a websocket. The
// subscription is tied to the connection context, so closing the socket
// (or tearing down the view behind it) unsubscribes and leaks nothing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("failed to accept websocket", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	changes, subID := s.manager.Notifier().Subscribe(ctx, "session:"+sess.ID)
	defer s.manager.Notifier().Unsubscribe("session:"+sess.ID, subID)

	s.logger.Debug("event stream opened", "session_id", sess.ID, "sub_id", subID)

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Kind != store.ChangeMessageAppended || change.Message == nil {
				continue
			}
			event := eventJSON{
				Kind: change.Kind,
				Message: &entryWire{
					ID:        change.Message.ID,
					Sender:    change.Message.Sender,
					Text:      change.Message.Text,
					ChainMeta: change.Message.ChainMeta,
					CreatedAt: change.Message.CreatedAt,
				},
			}
			if err := writeWS(ctx, conn, event); err != nil {
				s.logger.Debug("event stream write failed, closing",
					"session_id", sess.ID, "error", err)
				return
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, v any) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return conn.Write(writeCtx, websocket.MessageText, data)
}
