package audit

import (
	"strings"
	"time"

	"github.com/iamwavecut/modcore/internal/event"
)

// Action is one enforcement decision as persisted for audit/notification.
type Action struct {
	ID         string    `db:"id"`
	UserID     int64     `db:"user_id"`
	ChatID     int64     `db:"chat_id"`
	MessageID  string    `db:"message_id"`
	Decision   string    `db:"decision"`
	Tier       string    `db:"tier"`
	Score      float64   `db:"score"`
	Reputation int64     `db:"reputation"`
	Signals    string    `db:"signals"`
	CreatedAt  time.Time `db:"created_at"`
}

const EventModerationAction = "moderation_action"

// actionEventTTL bounds how long an unconsumed audit event stays on the bus.
const actionEventTTL = time.Hour

type ActionEvent struct {
	*event.Base
	Action Action
}

func NewActionEvent(action Action) *ActionEvent {
	return &ActionEvent{
		Base:   event.CreateBase(EventModerationAction, time.Now().Add(actionEventTTL)),
		Action: action,
	}
}

func JoinSignals(names []string) string {
	return strings.Join(names, ",")
}
