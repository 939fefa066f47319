package catalog

import "time"

// EventType identifies an engagement event.
type EventType string

const (
	EventView          EventType = "view"
	EventImpression    EventType = "impression"
	EventHover         EventType = "hover"
	EventDetailExpand  EventType = "detail_expand"
	EventCardClick     EventType = "card_click"
	EventReferralClick EventType = "referral_click"
)

// eventWeights is fixed; it is not user-configurable.
var eventWeights = map[EventType]float64{
	EventView:          0,
	EventImpression:    0,
	EventHover:         0.25,
	EventDetailExpand:  0.25,
	EventCardClick:     0.5,
	EventReferralClick: 1.0,
}

// EventWeight returns the popularity weight of one event of type t.
// Unknown types weigh nothing.
func EventWeight(t EventType) float64 {
	return eventWeights[t]
}

// KnownEventType reports whether t is in the weight table.
func KnownEventType(t EventType) bool {
	_, ok := eventWeights[t]
	return ok
}

// IsImpression reports whether t counts toward a book's impression counter.
func (t EventType) IsImpression() bool {
	return t == EventView || t == EventImpression
}

// IsClickThrough reports whether t counts toward a book's click-through counter.
func (t EventType) IsClickThrough() bool {
	return t == EventCardClick || t == EventReferralClick
}

// Event is one append-only engagement log row.
type Event struct {
	ID         int64     `json:"id" db:"id"`
	BookID     int64     `json:"book_id" db:"book_id" validate:"required,gt=0"`
	UserID     int64     `json:"user_id,omitempty" db:"user_id" validate:"gte=0"`
	Type       EventType `json:"type" db:"event_type" validate:"required,oneof=view impression hover detail_expand card_click referral_click"`
	Weight     float64   `json:"weight" db:"weight"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// EventCount is the number of events of one type recorded for one book.
type EventCount struct {
	BookID int64     `db:"book_id"`
	Type   EventType `db:"event_type"`
	Count  int64     `db:"cnt"`
}
