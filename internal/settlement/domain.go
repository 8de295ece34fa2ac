package settlement

import (
	"time"
)

// PaymentMode enumerates accepted payment channels.
type PaymentMode string

const (
	ModeCash         PaymentMode = "CASH"
	ModeMobileMoney  PaymentMode = "MOBILE_MONEY"
	ModeBankTransfer PaymentMode = "BANK_TRANSFER"
	ModeCheck        PaymentMode = "CHECK"
)

// RequiresReference reports whether the mode needs an external reference.
func (m PaymentMode) RequiresReference() bool {
	return m != ModeCash
}

// Valid reports whether the mode is one of the accepted channels.
func (m PaymentMode) Valid() bool {
	switch m {
	case ModeCash, ModeMobileMoney, ModeBankTransfer, ModeCheck:
		return true
	}
	return false
}

// Due is an open contribution owed by an owner. Dues are created by upstream
// billing; this engine only reads them and allocates payments against them.
type Due struct {
	ID             int64     `json:"id"`
	Motive         string    `json:"motive"`
	AmountDue      float64   `json:"amount_due"`
	AmountPaid     float64   `json:"amount_paid"`
	DueDate        time.Time `json:"due_date"`
	RelatedEventID *int64    `json:"related_event_id,omitempty"`
}

// Remaining returns the unpaid portion of the due.
func (d Due) Remaining() float64 {
	return d.AmountDue - d.AmountPaid
}

// Label identifies the due in user-facing failure reports.
func (d Due) Label() string {
	if d.Motive != "" {
		return d.Motive
	}
	return d.DueDate.Format("2006-01-02")
}

// BalanceSummary is a per-owner snapshot of open dues and totals. It is
// fetched wholesale when the owner changes and never mutated locally.
type BalanceSummary struct {
	OwnerID   int64     `json:"owner_id"`
	TotalDue  float64   `json:"total_due"`
	TotalPaid float64   `json:"total_paid"`
	OpenDues  []Due     `json:"open_dues"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Remaining returns the owner-level outstanding balance.
func (b BalanceSummary) Remaining() float64 {
	return b.TotalDue - b.TotalPaid
}

// Due looks up an open due by id.
func (b BalanceSummary) Due(id int64) (Due, bool) {
	for _, d := range b.OpenDues {
		if d.ID == id {
			return d, true
		}
	}
	return Due{}, false
}

// PaymentDetails carries the metadata shared by every line of a batch.
type PaymentDetails struct {
	Date      time.Time
	Mode      PaymentMode
	Reference string
	Comment   string
}

// LineSubmission is one persistence call: a single allocation against a due.
type LineSubmission struct {
	DueID     int64
	OwnerID   int64
	Amount    float64
	Mode      PaymentMode
	Reference string
	Comment   string
	Date      time.Time
}

// PaymentRecord is the immutable result of persisting one line.
type PaymentRecord struct {
	ID        int64       `json:"id"`
	DueID     int64       `json:"due_id"`
	Amount    float64     `json:"amount"`
	Mode      PaymentMode `json:"mode"`
	Reference string      `json:"reference,omitempty"`
	Date      time.Time   `json:"date"`
	Status    string      `json:"status"`
}

// LineFailure records one line that could not be persisted.
type LineFailure struct {
	DueID    int64  `json:"due_id"`
	DueLabel string `json:"due_label"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

// Outcome classifies the aggregate result of a batch.
type Outcome string

const (
	OutcomeAllSucceeded Outcome = "ALL_SUCCEEDED"
	OutcomePartial      Outcome = "PARTIAL"
	OutcomeAllFailed    Outcome = "ALL_FAILED"
)

// BatchResult aggregates per-line results after every line was attempted.
type BatchResult struct {
	Outcome  Outcome         `json:"outcome"`
	Records  []PaymentRecord `json:"records"`
	Failures []LineFailure   `json:"failures"`
}

// Settled reports whether at least one line was persisted.
func (r BatchResult) Settled() bool {
	return len(r.Records) > 0
}

// TotalSettled sums the amounts of all persisted lines.
func (r BatchResult) TotalSettled() float64 {
	var total float64
	for _, rec := range r.Records {
		total += rec.Amount
	}
	return total
}
