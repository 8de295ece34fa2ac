package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Validation and batch errors surfaced before or during submission.
var (
	ErrEmptySelection    = errors.New("settlement: selection is empty")
	ErrNonPositiveTotal  = errors.New("settlement: total must be positive")
	ErrExceedsRemaining  = errors.New("settlement: total exceeds outstanding balance")
	ErrDateMissing       = errors.New("settlement: payment date required")
	ErrDateInFuture      = errors.New("settlement: payment date cannot be in the future")
	ErrReferenceRequired = errors.New("settlement: reference required for non-cash payment")
	ErrInvalidMode       = errors.New("settlement: unknown payment mode")
	// ErrUnavailable marks a systemic transport failure. A submitter returning
	// an error wrapping it aborts the whole batch before further lines run.
	ErrUnavailable = errors.New("settlement: persistence unavailable")
	// ErrAlreadySettled is reported for a line rejected by the idempotency
	// guard because the same allocation was persisted before.
	ErrAlreadySettled = errors.New("settlement: line already settled")
)

// Submitter persists one allocation line.
type Submitter interface {
	SubmitPayment(ctx context.Context, line LineSubmission) (PaymentRecord, error)
}

// Guard optionally protects lines against double submission. A conflict is
// reported via ErrAlreadySettled; an unreachable guard wraps ErrUnavailable
// and is treated like any other systemic failure. Release frees a claimed key
// whose line failed to persist so a retry is not rejected as a duplicate.
type Guard interface {
	CheckAndInsert(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Config tunes batch validation.
type Config struct {
	// OverpayTolerance is how far, in currency units, the submitted total may
	// exceed the owner's outstanding balance before the batch is rejected.
	OverpayTolerance float64
}

// DefaultOverpayTolerance absorbs rounding on mobile-money amounts.
const DefaultOverpayTolerance = 100

// Controller turns a selection plus payment details into a sequence of
// independent persistence calls and classifies the aggregate outcome. Lines
// are submitted strictly in selection order; a failed line never aborts the
// remainder of the batch.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	guard  Guard
	now    func() time.Time
}

// NewController builds a Controller. The guard may be nil, in which case
// duplicate lines are not detected (callers purge settled lines instead).
func NewController(cfg Config, logger *slog.Logger, guard Guard) *Controller {
	if cfg.OverpayTolerance <= 0 {
		cfg.OverpayTolerance = DefaultOverpayTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, logger: logger, guard: guard, now: time.Now}
}

// BatchInput carries everything one submission needs.
type BatchInput struct {
	OwnerID   int64
	Balance   BalanceSummary
	Selection *Selection
	Details   PaymentDetails
	// GuardScope namespaces idempotency keys, typically the wizard id.
	GuardScope string
}

// Validate applies every precondition without side effects.
func (c *Controller) Validate(in BatchInput) error {
	if in.Selection == nil || in.Selection.IsEmpty() {
		return ErrEmptySelection
	}
	total := in.Selection.TotalAllocated()
	if total <= 0 {
		return ErrNonPositiveTotal
	}
	if total > in.Balance.Remaining()+c.cfg.OverpayTolerance {
		return fmt.Errorf("%w: %.0f over %.0f", ErrExceedsRemaining, total, in.Balance.Remaining())
	}
	if in.Details.Date.IsZero() {
		return ErrDateMissing
	}
	if in.Details.Date.After(c.now()) {
		return ErrDateInFuture
	}
	if !in.Details.Mode.Valid() {
		return ErrInvalidMode
	}
	if in.Details.Mode.RequiresReference() && in.Details.Reference == "" {
		return ErrReferenceRequired
	}
	return nil
}

// Submit validates the batch then submits every line sequentially. The
// returned error is non-nil only for validation failures and systemic
// transport failures; per-line errors are folded into the BatchResult.
func (c *Controller) Submit(ctx context.Context, in BatchInput, submitter Submitter) (BatchResult, error) {
	if err := c.Validate(in); err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, line := range in.Selection.Lines() {
		var guardKey string
		if c.guard != nil && in.GuardScope != "" {
			guardKey = fmt.Sprintf("%s:due:%d", in.GuardScope, line.Due.ID)
			if err := c.guard.CheckAndInsert(ctx, guardKey); err != nil {
				if errors.Is(err, ErrUnavailable) && !result.Settled() && len(result.Failures) == 0 {
					return BatchResult{}, err
				}
				if !errors.Is(err, ErrAlreadySettled) {
					c.logger.Warn("settlement guard check failed",
						slog.String("key", guardKey), slog.Any("error", err))
				}
				result.Failures = append(result.Failures, LineFailure{
					DueID:    line.Due.ID,
					DueLabel: line.Due.Label(),
					Err:      err,
					Message:  err.Error(),
				})
				continue
			}
		}

		record, err := submitter.SubmitPayment(ctx, LineSubmission{
			DueID:     line.Due.ID,
			OwnerID:   in.OwnerID,
			Amount:    line.Allocated,
			Mode:      in.Details.Mode,
			Reference: in.Details.Reference,
			Comment:   in.Details.Comment,
			Date:      in.Details.Date,
		})
		if err != nil {
			if guardKey != "" {
				if relErr := c.guard.Release(ctx, guardKey); relErr != nil {
					c.logger.Warn("release guard key",
						slog.String("key", guardKey), slog.Any("error", relErr))
				}
			}
			if errors.Is(err, ErrUnavailable) && !result.Settled() && len(result.Failures) == 0 {
				return BatchResult{}, err
			}
			c.logger.Warn("settlement line failed",
				slog.Int64("due_id", line.Due.ID),
				slog.Float64("amount", line.Allocated),
				slog.Any("error", err))
			result.Failures = append(result.Failures, LineFailure{
				DueID:    line.Due.ID,
				DueLabel: line.Due.Label(),
				Err:      err,
				Message:  err.Error(),
			})
			continue
		}
		result.Records = append(result.Records, record)
	}

	switch {
	case len(result.Failures) == 0:
		result.Outcome = OutcomeAllSucceeded
	case len(result.Records) == 0:
		result.Outcome = OutcomeAllFailed
	default:
		result.Outcome = OutcomePartial
	}
	return result, nil
}
