package workflows

import (
	"context"
	"time"
)

// Capability interfaces for workflow actions. One typed call per action type;
// this package knows the declared config shape, never the provider wire
// format. Implementations live with the CRM/calendar/messaging integrations.

// Contact is the provider-agnostic CRM contact shape.
type Contact struct {
	Phone string
	Name  string
	Email string
}

// CallNote summarizes a finished call for CRM logging.
type CallNote struct {
	ContactPhone    string
	Summary         string
	DurationSeconds int
	RecordingURL    string
}

type CRMClient interface {
	UpsertContact(ctx context.Context, tenantID string, c Contact) error
	LogCall(ctx context.Context, tenantID string, n CallNote) error
	AddTag(ctx context.Context, tenantID, contactPhone, tag string) error
	MovePipeline(ctx context.Context, tenantID, contactPhone, pipelineID, stageID string) error
	CreateAppointment(ctx context.Context, tenantID, contactPhone, calendarID string, at time.Time) error
}

type Booking struct {
	ContactPhone string
	ContactName  string
	EventTypeID  string
	At           time.Time
}

type CalendarClient interface {
	Book(ctx context.Context, tenantID string, b Booking) error
	Cancel(ctx context.Context, tenantID, bookingID string) error
	CheckAvailability(ctx context.Context, tenantID, eventTypeID string, day time.Time) (bool, error)
}

type MessagingClient interface {
	SendSMS(ctx context.Context, tenantID, toNumber, body string) error
	SendEmail(ctx context.Context, tenantID, toAddress, subject, body string) error
	SendSlack(ctx context.Context, tenantID, channel, message string) error
}

// Capabilities bundles the external collaborators actions dispatch against,
// keyed by provider where more than one exists. Missing entries fail the
// individual action, never the workflow.
type Capabilities struct {
	CRM       map[string]CRMClient      // "hubspot", "ghl"
	Calendar  map[string]CalendarClient // "calcom", "gcal"
	Messaging MessagingClient
}
