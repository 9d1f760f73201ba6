package wsgateway

import (
	"errors"
	"fmt"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

var errNotRegistered = errors.New("connection not registered")

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypeUnsubscribe   MessageType = "unsubscribe"
	MessageTypePing          MessageType = "ping"
	MessageTypePong          MessageType = "pong"
	MessageTypeSuccess       MessageType = "success"
	MessageTypeError         MessageType = "error"
	MessageTypeRankingUpdate MessageType = "ranking_update"
)

// ClientMessage represents a message from the client. An empty Date
// subscribes to every date of Kind.
type ClientMessage struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`
	Date string `json:"date,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// topic builds the subscription key of a kind and an optional date
func topic(kind models.UsageKind, date string) string {
	if date == "" {
		date = "*"
	}
	return string(kind) + ":" + date
}

// parseTopic validates the kind and date of a subscribe request
func parseTopic(msg *ClientMessage) (string, error) {
	kind, err := models.ParseUsageKind(msg.Kind)
	if err != nil {
		return "", fmt.Errorf("kind must be feed or mix")
	}
	date := ""
	if msg.Date != "" {
		if date, err = models.NormalizeDate(msg.Date); err != nil {
			return "", fmt.Errorf("date must be YYYYMMDD or YYYY-MM-DD")
		}
	}
	return topic(kind, date), nil
}

// HandleClientMessage applies a client request to conn's subscriptions
func (h *Hub) HandleClientMessage(conn *Connection, msg *ClientMessage) error {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		t, err := parseTopic(msg)
		if err != nil {
			return conn.SendError("invalid_request", err.Error())
		}
		action := "subscribed"
		if MessageType(msg.Type) == MessageTypeSubscribe {
			if !h.registry.Subscribe(conn.ID, t) {
				return errNotRegistered
			}
		} else {
			h.registry.Unsubscribe(conn.ID, t)
			action = "unsubscribed"
		}
		logger.Debug("Client ranking subscription changed",
			logger.String("connection_id", conn.ID),
			logger.String("user_id", conn.UserID),
			logger.String("action", action),
			logger.String("topic", t),
		)
		return conn.SendSuccess(action, map[string]string{"topic": t})

	case MessageTypePing:
		return conn.enqueue(ServerMessage{Type: MessageTypePong})

	default:
		return conn.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// SendSuccess acknowledges a client request
func (c *Connection) SendSuccess(action string, data interface{}) error {
	return c.enqueue(ServerMessage{
		Type: MessageTypeSuccess,
		Data: map[string]interface{}{
			"action": action,
			"data":   data,
		},
	})
}

// SendError sends an error message to the client
func (c *Connection) SendError(code string, message string) error {
	return c.enqueue(ServerMessage{
		Type:    MessageTypeError,
		Code:    code,
		Message: message,
	})
}
