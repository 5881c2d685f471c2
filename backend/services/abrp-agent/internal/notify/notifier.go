package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subtype tags every notification raised by the agent.
const Subtype = "usr.abrp.status"

// Type is the notification severity.
type Type string

const (
	TypeInfo  Type = "info"
	TypeAlert Type = "alert"
	TypeError Type = "error"
)

// Notification is one operator-visible message.
type Notification struct {
	ID      string    `json:"id"`
	Type    Type      `json:"type"`
	Subtype string    `json:"subtype"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Broadcaster delivers encoded notifications to live subscribers.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Notifier logs notifications and forwards them to the broadcaster when present.
type Notifier struct {
	logger *zap.Logger
	out    Broadcaster
	now    func() time.Time
}

// NewNotifier returns notifier; out may be nil.
func NewNotifier(logger *zap.Logger, out Broadcaster) *Notifier {
	return &Notifier{logger: logger, out: out, now: time.Now}
}

// Raise emits a notification.
func (n *Notifier) Raise(typ Type, message string) Notification {
	note := Notification{
		ID:      uuid.NewString(),
		Type:    typ,
		Subtype: Subtype,
		Message: message,
		Time:    n.now().UTC(),
	}

	fields := []zap.Field{zap.String("type", string(typ)), zap.String("subtype", Subtype), zap.String("id", note.ID)}
	switch typ {
	case TypeError:
		n.logger.Error(message, fields...)
	case TypeAlert:
		n.logger.Warn(message, fields...)
	default:
		n.logger.Info(message, fields...)
	}

	if n.out != nil {
		data, err := json.Marshal(note)
		if err != nil {
			n.logger.Warn("failed to encode notification", zap.Error(err))
			return note
		}
		n.out.Broadcast(data)
	}
	return note
}
