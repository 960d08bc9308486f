package model

// Snapshot captures one side of a confirmed count change. Count, Timestamp
// and ImagePath are immutable once the event is persisted; ImageURL is
// derived on read and never part of the event identity.
type Snapshot struct {
	Count     int     `json:"count"`
	Timestamp string  `json:"timestamp"`
	ImagePath *string `json:"image_path"`
	ImageURL  *string `json:"image_url,omitempty"`
}

// Box represents one replenishment cycle of the physical egg container.
type Box struct {
	ID         int    `json:"id"`
	InsertedAt string `json:"inserted_at"`
	PayerName  string `json:"payer_name"`
	PayerPix   string `json:"payer_pix"`
}

// ChangeEvent is one confirmed count change in the append-only log.
//
// The before/after snapshots, box id and delta are frozen at confirmation
// time. Everything below the audit marker is mutated by the taker workflow
// and is deliberately excluded from the event identity.
type ChangeEvent struct {
	EventID               string   `json:"event_id,omitempty"`
	Before                Snapshot `json:"before"`
	After                 Snapshot `json:"after"`
	ConfirmedDelaySeconds int      `json:"confirmed_delay_seconds"`
	Delta                 int      `json:"delta"`
	BoxID                 int      `json:"box_id"`
	Box                   *Box     `json:"box,omitempty"`
	TakerName             *string  `json:"taker_name"`

	// Audit fields, owned by the taker workflow.
	EggTakerVerified      bool    `json:"egg_taker_verified"`
	VerifiedByUser        *string `json:"verified_by_user"`
	VerificationTimestamp *string `json:"verification_timestamp"`
	MistakeFlag           bool    `json:"mistake_flag"`
	MistakeReportedBy     *string `json:"mistake_reported_by,omitempty"`
}

// TakerAction is the kind of entry recorded in the takers history.
type TakerAction string

const (
	TakerActionConfirm TakerAction = "confirm"
	TakerActionMistake TakerAction = "mistake"
)

// TakerHistoryEntry is one row of the append-only taker audit trail.
type TakerHistoryEntry struct {
	EventID   string      `json:"event_id"`
	Action    TakerAction `json:"action"`
	By        string      `json:"by"`
	Timestamp string      `json:"timestamp"`
	BoxID     int         `json:"box_id"`
	Delta     int         `json:"delta"`
}

// CurrentState summarizes the most recent confirmed event for clients.
// Field names are part of the HTTP contract.
type CurrentState struct {
	BoxID            string  `json:"boxId"`
	CurrentCount     int     `json:"currentCount"`
	PreviousCount    int     `json:"previousCount"`
	LastUpdated      string  `json:"lastUpdated"`
	LastImageURL     *string `json:"lastImageUrl"`
	PreviousImageURL *string `json:"previousImageUrl"`
}

// StringPtr returns a pointer to s. Convenience for the nullable JSON fields.
func StringPtr(s string) *string { return &s }
