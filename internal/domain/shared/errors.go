// internal/domain/shared/errors.go
package shared

// DomainError represents a business-rule violation that the caller can
// recover from. The HTTP layer translates the code to a response status.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound          = NewDomainError("NOT_FOUND", "resource not found")
	ErrInsufficientStock = NewDomainError("INSUFFICIENT_STOCK", "insufficient stock available")
	ErrOverAllocation    = NewDomainError("OVER_ALLOCATION", "planned quantity exceeds remaining order quantity")
	ErrOverSale          = NewDomainError("OVER_SALE", "sale quantity exceeds remaining consignment quantity")
	ErrOverReturn        = NewDomainError("OVER_RETURN", "return quantity exceeds remaining consignment quantity")
	ErrInvalidTransition = NewDomainError("INVALID_TRANSITION", "operation not allowed in current state")
	ErrCapacityExceeded  = NewDomainError("CAPACITY_EXCEEDED", "placement exceeds unshipped allocation quantity")
	ErrConflict          = NewDomainError("CONFLICT", "resource was modified by another process")
	ErrInvalidInput      = NewDomainError("INVALID_INPUT", "invalid input provided")
)
