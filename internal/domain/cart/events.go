package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type NoticeLevel string

const (
	NoticeError   NoticeLevel = "error"
	NoticeSuccess NoticeLevel = "success"
)

// ChangedEvent is emitted after a mutation has been persisted.
type ChangedEvent struct {
	Key        string
	Items      []LineItem
	Count      int
	Total      decimal.Decimal
	OccurredAt time.Time
}

func (ChangedEvent) EventName() string { return "cart.changed" }

func NewChangedEvent(key string, c Cart) ChangedEvent {
	return ChangedEvent{
		Key:        key,
		Items:      c.Items(),
		Count:      c.Count(),
		Total:      c.Total(),
		OccurredAt: time.Now().UTC(),
	}
}

// NoticeEvent mirrors a user-facing notice onto the event bus.
type NoticeEvent struct {
	Level      NoticeLevel
	Message    string
	OccurredAt time.Time
}

func (NoticeEvent) EventName() string { return "cart.notice" }

func NewNoticeEvent(level NoticeLevel, message string) NoticeEvent {
	return NoticeEvent{
		Level:      level,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
}
