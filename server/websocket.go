package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/cluster"
	"github.com/xhad/recall/pkg/search"
)

// Message is the WebSocket envelope in both directions. Requests carry a
// query type ("search", "recent", "hybrid" or "expand") and the query text
// in Content; responses are "results" or "error".
type Message struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// QueryParams is the optional Data of a request.
type QueryParams struct {
	Org      string  `json:"org,omitempty"`
	Project  string  `json:"project,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	DaysBack *int    `json:"days_back,omitempty"`
	ChunkIDs []int64 `json:"chunk_ids,omitempty"`
	CallID   int64   `json:"call_id,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, "error", "malformed message", nil)
			continue
		}

		data, err := s.handleMessage(ctx, msg)
		if err != nil {
			s.sendMessage(conn, "error", err.Error(), nil)
			continue
		}
		s.sendMessage(conn, "results", msg.Type, data)
	}
}

func (s *Server) handleMessage(ctx context.Context, msg Message) (any, error) {
	var params QueryParams
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &params); err != nil {
			return nil, fmt.Errorf("%w: malformed data", types.ErrInvalidInput)
		}
	}
	if params.Limit < 0 || params.Limit > maxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", types.ErrInvalidInput, maxLimit)
	}
	opts := search.Options{
		Org:      params.Org,
		Project:  params.Project,
		Limit:    params.Limit,
		DaysBack: params.DaysBack,
	}

	switch msg.Type {
	case "search":
		return s.search.Semantic(ctx, msg.Content, opts)
	case "recent":
		return s.search.Recent(ctx, msg.Content, opts)
	case "hybrid":
		return s.search.Hybrid(ctx, msg.Content, opts)
	case "expand":
		return s.clusters.Expand(ctx, params.ChunkIDs, cluster.ExpandOptions{
			Scope: models.Scope{CallID: params.CallID},
		})
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", types.ErrInvalidInput, msg.Type)
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string, data any) {
	msg := Message{Type: msgType, Content: content}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			s.logger.Error("failed to encode websocket payload", "err", err)
			msg = Message{Type: "error", Content: "internal error"}
		} else {
			msg.Data = raw
		}
	}
	if err := conn.WriteJSON(msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Warn("failed to send websocket message", "err", err)
	}
}
