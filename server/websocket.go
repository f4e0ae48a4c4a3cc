package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message is the websocket request and reply envelope.
type Message struct {
	Type      string       `json:"type"`
	ID        int64        `json:"id"`
	KeyID     int64        `json:"key_id,omitempty"`
	BitLength int          `json:"bit_length,omitempty"`
	Data      string       `json:"data,omitempty"`
	Key       *KeyResponse `json:"key,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// maxInFlight caps the concurrent requests served per connection.
const maxInFlight = 4

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// wsHandler answers "key-gen", "encrypt" and "decrypt" messages. Every
// request runs in its own goroutine, at most maxInFlight at a time, and
// replies carry the request id. Pending requests are cancelled once the
// peer goes away.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := &wsConn{conn: conn}
	log := s.log.WithField("remote", r.RemoteAddr)
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	sem := make(chan struct{}, maxInFlight)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("error reading the message")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			if err := client.send(Message{Type: "error", Error: err.Error()}); err != nil {
				log.WithError(err).Warn("error writing the message")
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		default:
			reply := Message{Type: msg.Type, ID: msg.ID, KeyID: msg.KeyID, Error: "too many requests in flight"}
			if err := client.send(reply); err != nil {
				log.WithError(err).Warn("error writing the message")
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			reply := s.handleMessage(ctx, msg)
			if ctx.Err() != nil {
				return
			}
			if err := client.send(reply); err != nil {
				log.WithError(err).Warn("error writing the message")
			}
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, msg Message) Message {
	reply := Message{Type: msg.Type, ID: msg.ID, KeyID: msg.KeyID}

	var err error
	switch msg.Type {
	case "key-gen":
		var key *KeyResponse
		key, err = s.generateKey(ctx, msg.BitLength)
		if err == nil {
			reply.Key = key
			reply.KeyID = key.ID
		}
	case "encrypt":
		reply.Data, err = s.encrypt(ctx, msg.KeyID, msg.Data)
	case "decrypt":
		reply.Data, err = s.decrypt(ctx, msg.KeyID, msg.Data)
	default:
		reply.Error = "unknown message type " + msg.Type
		return reply
	}

	if err != nil {
		s.log.WithFields(logrus.Fields{"type": msg.Type, "key_id": msg.KeyID}).WithError(err).Debug("websocket request failed")
		reply.Error = err.Error()
	}
	return reply
}
