package errors

import "fmt"

// InsufficientBalanceError is returned when a user doesn't have enough credits
type InsufficientBalanceError struct {
	UserID    string
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient credit balance: requested %d, available %d", e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientCredits) match.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// NewInsufficientBalanceError creates a new InsufficientBalanceError
func NewInsufficientBalanceError(userID string, requested, available int64) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		UserID:    userID,
		Requested: requested,
		Available: available,
	}
}
