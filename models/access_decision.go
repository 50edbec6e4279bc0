package models

import (
	"time"

	"github.com/google/uuid"
)

// DecisionOutcome is the result recorded for an authorization check
type DecisionOutcome string

const (
	DecisionAllow DecisionOutcome = "allow"
	DecisionDeny  DecisionOutcome = "deny"
)

// AccessDecision is an audit trail entry for one authorization decision
type AccessDecision struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	RequestID  string          `json:"request_id" db:"request_id"`
	Subject    *string         `json:"subject,omitempty" db:"subject"`
	Username   *string         `json:"username,omitempty" db:"username"`
	Roles      []string        `json:"roles,omitempty" db:"roles"`
	Method     string          `json:"method" db:"method"`
	Path       string          `json:"path" db:"path"`
	Outcome    DecisionOutcome `json:"outcome" db:"outcome"`
	Rule       string          `json:"rule,omitempty" db:"rule"`
	Reason     string          `json:"reason" db:"reason"`
	RemoteAddr string          `json:"remote_addr" db:"remote_addr"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AccessDecision model
func (AccessDecision) TableName() string {
	return "access_decisions"
}

// NewAccessDecision creates a new AccessDecision instance
func NewAccessDecision(method, path string, allowed bool, rule, reason string) *AccessDecision {
	outcome := DecisionDeny
	if allowed {
		outcome = DecisionAllow
	}
	return &AccessDecision{
		ID:        uuid.New(),
		Method:    method,
		Path:      path,
		Outcome:   outcome,
		Rule:      rule,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// WithPrincipal sets the caller identity
func (a *AccessDecision) WithPrincipal(subject, username string, roles []string) *AccessDecision {
	a.Subject = &subject
	a.Username = &username
	a.Roles = append([]string(nil), roles...)
	return a
}

// WithRequest sets request metadata
func (a *AccessDecision) WithRequest(requestID, remoteAddr, userAgent string) *AccessDecision {
	a.RequestID = requestID
	a.RemoteAddr = remoteAddr
	a.UserAgent = userAgent
	return a
}

// Allowed reports whether the decision let the request through
func (a *AccessDecision) Allowed() bool {
	return a.Outcome == DecisionAllow
}
