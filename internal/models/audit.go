package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB maps a Postgres jsonb column onto a plain map.
type JSONB map[string]interface{}

// Value implements driver.Valuer for jsonb columns.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for jsonb columns.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
	return json.Unmarshal(b, j)
}

// AuditEventType represents the type of booking event being audited
type AuditEventType string

const (
	AuditEventSeatsHeld        AuditEventType = "seats_held"
	AuditEventSeatsReleased    AuditEventType = "seats_released"
	AuditEventCheckoutCreated  AuditEventType = "checkout_created"
	AuditEventCheckoutFailed   AuditEventType = "checkout_failed"
	AuditEventWebhookReceived  AuditEventType = "webhook_received"
	AuditEventWebhookRejected  AuditEventType = "webhook_rejected"
	AuditEventBookingConfirmed AuditEventType = "booking_confirmed"
	AuditEventBookingCancelled AuditEventType = "booking_cancelled"
	AuditEventBookingExpired   AuditEventType = "booking_expired"
	AuditEventTicketsIssued    AuditEventType = "tickets_issued"
	AuditEventCompensation     AuditEventType = "compensation"
	AuditEventError            AuditEventType = "error"
)

// AuditEventSource identifies where the event originated
type AuditEventSource string

const (
	AuditSourceBackend       AuditEventSource = "backend"
	AuditSourcePolarWebhook  AuditEventSource = "polar_webhook"
	AuditSourcePolarAPI      AuditEventSource = "polar_api"
	AuditSourcePassenger     AuditEventSource = "passenger"
	AuditSourceSystem        AuditEventSource = "system"
	AuditSourceOperator      AuditEventSource = "operator"
)

// BookingAudit represents an immutable audit log entry for booking events
type BookingAudit struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BookingID  *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	PnrCode    *string    `json:"pnr_code,omitempty" db:"pnr_code"`
	CheckoutID *string    `json:"checkout_id,omitempty" db:"checkout_id"`

	// Event info
	EventType   AuditEventType   `json:"event_type" db:"event_type"`
	EventSource AuditEventSource `json:"event_source" db:"event_source"`

	// Amount tracking in minor units
	ExpectedAmount *int64  `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64  `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool   `json:"amounts_match,omitempty" db:"amounts_match"`

	// Raw payloads kept for incident investigation
	RequestPayload  JSONB   `json:"request_payload,omitempty" db:"request_payload"`
	ResponsePayload JSONB   `json:"response_payload,omitempty" db:"response_payload"`
	RawBody         *string `json:"raw_body,omitempty" db:"raw_body"`

	// HTTP details
	HTTPStatusCode *int    `json:"http_status_code,omitempty" db:"http_status_code"`
	HTTPMethod     *string `json:"http_method,omitempty" db:"http_method"`
	EndpointURL    *string `json:"endpoint_url,omitempty" db:"endpoint_url"`

	// Error tracking
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorTag     *string `json:"error_tag,omitempty" db:"error_tag"`

	// Processing info
	ProcessingTimeMs *int `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	IsDuplicate      bool `json:"is_duplicate" db:"is_duplicate"`

	// Metadata
	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo    *string `json:"device_info,omitempty" db:"device_info"`
	CorrelationID *string `json:"correlation_id,omitempty" db:"correlation_id"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// NewBookingAudit creates a new audit entry with required fields
func NewBookingAudit(eventType AuditEventType, source AuditEventSource) *BookingAudit {
	return &BookingAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
		IsDuplicate: false,
	}
}

// SetBooking sets the booking ID for the audit
func (ba *BookingAudit) SetBooking(bookingID uuid.UUID) *BookingAudit {
	ba.BookingID = &bookingID
	return ba
}

// SetPnr sets the record locator
func (ba *BookingAudit) SetPnr(pnr string) *BookingAudit {
	ba.PnrCode = &pnr
	return ba
}

// SetCheckout sets the Polar checkout session ID
func (ba *BookingAudit) SetCheckout(checkoutID string) *BookingAudit {
	ba.CheckoutID = &checkoutID
	return ba
}

// SetAmounts sets and verifies amounts, returning whether they match.
// Amounts are minor units so the comparison is exact.
func (ba *BookingAudit) SetAmounts(expected, received int64, currency string) bool {
	ba.ExpectedAmount = &expected
	ba.ReceivedAmount = &received
	ba.Currency = &currency

	match := expected == received
	ba.AmountsMatch = &match
	return match
}

// SetError sets error information
func (ba *BookingAudit) SetError(message string, tag *string) *BookingAudit {
	ba.ErrorMessage = &message
	ba.ErrorTag = tag
	return ba
}

// SetRawBody stores the raw payload before parsing
func (ba *BookingAudit) SetRawBody(body string) *BookingAudit {
	ba.RawBody = &body
	return ba
}

// SetHTTPDetails sets HTTP request/response details
func (ba *BookingAudit) SetHTTPDetails(method string, url string, statusCode int) *BookingAudit {
	ba.HTTPMethod = &method
	ba.EndpointURL = &url
	ba.HTTPStatusCode = &statusCode
	return ba
}

// SetRequestPayload sets the request payload sent
func (ba *BookingAudit) SetRequestPayload(payload map[string]interface{}) *BookingAudit {
	ba.RequestPayload = JSONB(payload)
	return ba
}

// SetResponsePayload sets the response payload received
func (ba *BookingAudit) SetResponsePayload(payload map[string]interface{}) *BookingAudit {
	ba.ResponsePayload = JSONB(payload)
	return ba
}

// SetMetadata sets request metadata
func (ba *BookingAudit) SetMetadata(ip, userAgent, deviceInfo, correlationID string) *BookingAudit {
	if ip != "" {
		ba.IPAddress = &ip
	}
	if userAgent != "" {
		ba.UserAgent = &userAgent
	}
	if deviceInfo != "" {
		ba.DeviceInfo = &deviceInfo
	}
	if correlationID != "" {
		ba.CorrelationID = &correlationID
	}
	return ba
}

// SetProcessingTime calculates and sets processing time
func (ba *BookingAudit) SetProcessingTime(startTime time.Time) *BookingAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	ba.ProcessingTimeMs = &durationMs
	now := time.Now()
	ba.ProcessedAt = &now
	return ba
}

// MarkAsDuplicate marks this event as a duplicate delivery
func (ba *BookingAudit) MarkAsDuplicate() *BookingAudit {
	ba.IsDuplicate = true
	return ba
}
