package persistence

import "time"

// Persona is a catalog entry as stored.
type Persona struct {
	Alias     string
	Category  string
	Bio       map[string]string
	Empathy   map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assignment links a subject to a persona. Category is resolved from the
// persona when reading.
type Assignment struct {
	ID         string
	SubjectID  string
	Alias      string
	Category   string
	Weight     int
	SelectedAt time.Time
}

// Reservation is the stored form of a reservation transaction.
type Reservation struct {
	ID                 string
	Subject            string
	Venue              string
	ScheduledAt        time.Time
	PartySize          int
	TotalPriceCents    int64
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CompletedAt        *time.Time
	CancellationReason string
	StatusBeforeCancel string
	PaymentID          string
	RefundID           string

	SnapshotHours      string
	SnapshotAddress    string
	SnapshotPhone      string
	SnapshotSource     string
	SnapshotCapturedAt time.Time
	SnapshotDigest     string
}
