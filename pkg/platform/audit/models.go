package audit

import (
	"time"
)

// DefaultRetention is the number of most recent events the trail keeps.
const DefaultRetention = 10000

// Status is the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IsValid checks if the status is one of the supported values.
func (s Status) IsValid() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Resource classes acted upon. The store does not restrict producers to these.
const (
	ResourceAuthentication = "authentication"
	ResourceUser           = "user"
	ResourcePayment        = "payment"
	ResourceDispute        = "dispute"
	ResourceSecurity       = "security"
)

// Dotted action names emitted by the collaborating handlers.
const (
	ActionAuthLogin         = "auth.login"
	ActionAuthLogout        = "auth.logout"
	ActionAuthRegister      = "auth.register"
	ActionAuthPasswordReset = "auth.password_reset"

	ActionUserBlock      = "user.block"
	ActionUserUnblock    = "user.unblock"
	ActionUserRoleChange = "user.role_change"
	ActionUserDelete     = "user.delete"

	ActionPaymentCreate  = "payment.create"
	ActionPaymentRelease = "payment.release"
	ActionPaymentRefund  = "payment.refund"

	ActionDisputeCreate  = "dispute.create"
	ActionDisputeResolve = "dispute.resolve"

	ActionRateLimitExceeded = "security.rate_limit_exceeded"
	ActionRateLimitReset    = "security.rate_limit_reset"
)

// Event is one immutable, security-relevant record in the trail.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	UserID     string         `json:"userId,omitempty"`
	UserRole   string         `json:"userRole,omitempty"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resourceId,omitempty"`
	Details    map[string]any `json:"details"`
	Changes    map[string]any `json:"changes,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	Status     Status         `json:"status"`
}

// Record is what producers hand to the trail: every Event field except the
// ID and Timestamp, which are assigned at append time.
type Record struct {
	Action     string
	UserID     string
	UserRole   string
	Resource   string
	ResourceID string
	Details    map[string]any
	Changes    map[string]any
	IPAddress  string
	Status     Status
}

// Validate reports every structural problem with the record.
func (r Record) Validate() map[string][]string {
	problems := map[string][]string{}
	if r.Action == "" {
		problems["action"] = append(problems["action"], "action is required")
	}
	if r.Resource == "" {
		problems["resource"] = append(problems["resource"], "resource is required")
	}
	if !r.Status.IsValid() {
		problems["status"] = append(problems["status"], "status must be success or failure")
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// Finalize binds an id and timestamp to the record. Maps are copied so later
// mutation by the producer cannot reach the stored event.
func (r Record) Finalize(id string, ts time.Time) Event {
	details := cloneMap(r.Details)
	if details == nil {
		details = map[string]any{}
	}
	return Event{
		ID:         id,
		Timestamp:  ts,
		Action:     r.Action,
		UserID:     r.UserID,
		UserRole:   r.UserRole,
		Resource:   r.Resource,
		ResourceID: r.ResourceID,
		Details:    details,
		Changes:    cloneMap(r.Changes),
		IPAddress:  r.IPAddress,
		Status:     r.Status,
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PaymentDetails is the context captured for payment actions.
type PaymentDetails struct {
	OrderID  string
	Amount   float64
	Currency string
}

// Map renders the details into the open key/value form the trail stores.
func (d PaymentDetails) Map() map[string]any {
	m := map[string]any{"orderId": d.OrderID, "amount": d.Amount}
	if d.Currency != "" {
		m["currency"] = d.Currency
	}
	return m
}

// DisputeDetails is the context captured for dispute actions.
type DisputeDetails struct {
	OrderID string
	Reason  string
}

// Map renders the details into the open key/value form the trail stores.
func (d DisputeDetails) Map() map[string]any {
	m := map[string]any{"orderId": d.OrderID}
	if d.Reason != "" {
		m["reason"] = d.Reason
	}
	return m
}

// Change records a before/after delta for administrative mutations.
func Change(before, after any) map[string]any {
	return map[string]any{"before": before, "after": after}
}
