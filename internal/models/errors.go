package models

import (
	"errors"
	"fmt"
)

// ErrorTag identifies a domain error kind. The transport layer switches on
// the tag to pick an HTTP status; services switch on it to decide retries.
type ErrorTag string

const (
	// Input / business errors
	TagFlightNotFound       ErrorTag = "FlightNotFound"
	TagFlightFull           ErrorTag = "FlightFull"
	TagBookingNotFound      ErrorTag = "BookingNotFound"
	TagBookingStatus        ErrorTag = "BookingStatus"
	TagBookingExpired       ErrorTag = "BookingExpired"
	TagInvalidAmount        ErrorTag = "InvalidAmount"
	TagCurrencyMismatch     ErrorTag = "CurrencyMismatch"
	TagUnsupportedCurrency  ErrorTag = "UnsupportedCurrency"
	TagInventoryOvercap     ErrorTag = "InventoryOvercapacity"
	TagTicketAlreadyIssued  ErrorTag = "TicketAlreadyIssued"

	// Concurrency
	TagOptimisticLocking ErrorTag = "OptimisticLocking"

	// Infrastructure
	TagBookingPersistence   ErrorTag = "BookingPersistence"
	TagInventoryPersistence ErrorTag = "InventoryPersistence"
	TagOutboxPersistence    ErrorTag = "OutboxPersistence"
	TagRequestTimeout       ErrorTag = "RequestTimeout"
	TagNetworkError         ErrorTag = "NetworkError"

	// Gateway
	TagPaymentApiUnavailable      ErrorTag = "PaymentApiUnavailable"
	TagPaymentDeclined            ErrorTag = "PaymentDeclined"
	TagCheckoutNotFound           ErrorTag = "CheckoutNotFound"
	TagNotificationApiUnavailable ErrorTag = "NotificationApiUnavailable"
	TagNotificationRateLimit      ErrorTag = "NotificationRateLimit"
	TagInvalidRecipient           ErrorTag = "InvalidRecipient"
	TagNotificationAuth           ErrorTag = "NotificationAuthentication"

	// Security
	TagWebhookAuthentication ErrorTag = "WebhookAuthentication"
	TagMalformedPayload      ErrorTag = "MalformedPayload"
)

// DomainError is the tagged error carried across all internal boundaries.
// Fields hold the tag-specific context that 4xx responses expose to clients.
type DomainError struct {
	Tag     ErrorTag
	Message string
	Fields  map[string]interface{}
	cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Tag, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Tag, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *DomainError) Unwrap() error {
	return e.cause
}

// WithField attaches a context field and returns the error for chaining.
func (e *DomainError) WithField(key string, value interface{}) *DomainError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithCause attaches an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.cause = cause
	return e
}

// NewDomainError creates a tagged error with a formatted message.
func NewDomainError(tag ErrorTag, format string, args ...interface{}) *DomainError {
	return &DomainError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// TagOf extracts the tag from an error chain. Returns false for untagged errors.
func TagOf(err error) (ErrorTag, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Tag, true
	}
	return "", false
}

// HasTag reports whether err carries the given tag anywhere in its chain.
func HasTag(err error, tag ErrorTag) bool {
	t, ok := TagOf(err)
	return ok && t == tag
}

// AsDomainError returns the DomainError in the chain, or nil.
func AsDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// ============================================================================
// CONSTRUCTORS PER TAG
// ============================================================================

// ErrFlightNotFound indicates no inventory exists for the flight.
func ErrFlightNotFound(flightID string) *DomainError {
	return NewDomainError(TagFlightNotFound, "flight %s not found", flightID).
		WithField("flightId", flightID)
}

// ErrFlightFull indicates a hold request exceeded the available seats.
func ErrFlightFull(requested, available int) *DomainError {
	return NewDomainError(TagFlightFull, "requested %d seats but only %d available", requested, available).
		WithField("requested", requested).
		WithField("available", available)
}

// ErrBookingNotFound indicates no booking exists for the identifier.
func ErrBookingNotFound(id string) *DomainError {
	return NewDomainError(TagBookingNotFound, "booking %s not found", id).
		WithField("bookingId", id)
}

// ErrBookingStatus indicates an operation was attempted in the wrong state.
func ErrBookingStatus(expected, actual BookingStatus) *DomainError {
	return NewDomainError(TagBookingStatus, "booking must be %s but is %s", expected, actual).
		WithField("expected", string(expected)).
		WithField("actual", string(actual))
}

// ErrBookingExpired indicates the booking's hold has lapsed.
func ErrBookingExpired(id string) *DomainError {
	return NewDomainError(TagBookingExpired, "booking %s has expired", id).
		WithField("bookingId", id)
}

// ErrInvalidAmount indicates a non-positive or malformed quantity or amount.
func ErrInvalidAmount(format string, args ...interface{}) *DomainError {
	return NewDomainError(TagInvalidAmount, format, args...)
}

// ErrCurrencyMismatch indicates an arithmetic operation across currencies.
func ErrCurrencyMismatch(left, right Currency) *DomainError {
	return NewDomainError(TagCurrencyMismatch, "cannot combine %s with %s", left, right).
		WithField("left", string(left)).
		WithField("right", string(right))
}

// ErrUnsupportedCurrency indicates a currency outside the supported set.
func ErrUnsupportedCurrency(currency string) *DomainError {
	return NewDomainError(TagUnsupportedCurrency, "currency %s is not supported", currency).
		WithField("currency", currency).
		WithField("supported", SupportedCurrencies())
}

// ErrInventoryOvercapacity indicates a release that would exceed capacity.
func ErrInventoryOvercapacity(available, capacity, releasing int) *DomainError {
	return NewDomainError(TagInventoryOvercap, "releasing %d seats would exceed capacity (%d/%d)", releasing, available, capacity).
		WithField("available", available).
		WithField("capacity", capacity).
		WithField("releasing", releasing)
}

// ErrTicketAlreadyIssued indicates a duplicate ticket issuance attempt.
func ErrTicketAlreadyIssued(pnr string) *DomainError {
	return NewDomainError(TagTicketAlreadyIssued, "tickets already issued for %s", pnr).
		WithField("pnrCode", pnr)
}

// ErrOptimisticLocking indicates a CAS write lost a concurrent race.
func ErrOptimisticLocking(entityType, id string, expected, actual int64) *DomainError {
	return NewDomainError(TagOptimisticLocking, "%s %s version conflict: expected %d, stored %d", entityType, id, expected, actual).
		WithField("entityType", entityType).
		WithField("id", id).
		WithField("expectedVersion", expected).
		WithField("actualVersion", actual)
}

// ErrBookingPersistence wraps a storage failure in the booking repository.
func ErrBookingPersistence(cause error, format string, args ...interface{}) *DomainError {
	return NewDomainError(TagBookingPersistence, format, args...).WithCause(cause)
}

// ErrInventoryPersistence wraps a storage failure in the inventory repository.
func ErrInventoryPersistence(cause error, format string, args ...interface{}) *DomainError {
	return NewDomainError(TagInventoryPersistence, format, args...).WithCause(cause)
}

// ErrOutboxPersistence wraps a storage failure in the outbox.
func ErrOutboxPersistence(cause error, format string, args ...interface{}) *DomainError {
	return NewDomainError(TagOutboxPersistence, format, args...).WithCause(cause)
}

// ErrRequestTimeout indicates the operation exceeded its deadline.
func ErrRequestTimeout(operation string) *DomainError {
	return NewDomainError(TagRequestTimeout, "%s timed out", operation).
		WithField("operation", operation)
}

// ErrWebhookAuthentication indicates a missing or invalid webhook signature.
func ErrWebhookAuthentication(reason string) *DomainError {
	return NewDomainError(TagWebhookAuthentication, "webhook authentication failed: %s", reason)
}

// ErrMalformedPayload indicates an unparseable request or event body.
func ErrMalformedPayload(cause error) *DomainError {
	return NewDomainError(TagMalformedPayload, "malformed payload").WithCause(cause)
}
