package types

import "errors"

// ErrorCategory classifies a failure so callers can decide how to react
// without matching on error text.
type ErrorCategory string

const (
	// CategoryTransient marks an external-call failure (network, non-zero
	// subprocess exit) that is safe to retry on the next poll tick.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInconsistent marks external state found to disagree with the
	// expected invariant during reconciliation. These are repaired in place
	// and normally never surface past the component that found them.
	CategoryInconsistent ErrorCategory = "inconsistent"

	// CategoryInvalidInput marks input rejected at a process boundary
	// before any transition was attempted.
	CategoryInvalidInput ErrorCategory = "invalid-input"

	// CategoryFatal marks a startup failure after which no useful work can
	// proceed. The daemon aborts instead of retrying.
	CategoryFatal ErrorCategory = "fatal"
)

// IsValid checks if the category value is valid
func (c ErrorCategory) IsValid() bool {
	switch c {
	case CategoryTransient, CategoryInconsistent, CategoryInvalidInput, CategoryFatal:
		return true
	}
	return false
}

// CategorizedError tags an underlying error with its failure category.
// The message stays untouched so logs read the same with or without the tag.
type CategorizedError struct {
	Category ErrorCategory
	Err      error
}

func (e *CategorizedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Categorize wraps err with the given category. A nil err stays nil.
// Re-categorizing an already-tagged error replaces the outer tag but keeps
// the chain intact for errors.Is/As.
func Categorize(category ErrorCategory, err error) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Category: category, Err: err}
}

// Transient tags err as a retry-next-tick failure.
func Transient(err error) error { return Categorize(CategoryTransient, err) }

// InvalidInput tags err as rejected boundary input.
func InvalidInput(err error) error { return Categorize(CategoryInvalidInput, err) }

// Fatal tags err as a startup-aborting failure.
func Fatal(err error) error { return Categorize(CategoryFatal, err) }

// CategoryOf extracts the innermost-first category tag from err's chain.
// Untagged errors report CategoryTransient, the safe default for a daemon
// that must never crash its loop on an unclassified failure.
func CategoryOf(err error) ErrorCategory {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryTransient
}

// IsFatal reports whether err carries the fatal category.
func IsFatal(err error) bool {
	return err != nil && CategoryOf(err) == CategoryFatal
}
