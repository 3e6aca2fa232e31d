package types

import "time"

// VerificationRequest is a pending approval ask for one user.
type VerificationRequest struct {
	UserID        UserID        `json:"user_id"`
	Title         string        `json:"title"`
	Body          string        `json:"body"`
	CorrelationID CorrelationID `json:"correlation_id"`
}

// VerificationResult is the terminal outcome of a VerificationRequest.
type VerificationResult struct {
	Approved      bool          `json:"approved"`
	KeyToken      KeyToken      `json:"key_token,omitempty"`
	UserID        UserID        `json:"user_id"`
	CorrelationID CorrelationID `json:"correlation_id"`
	ResolvedAt    time.Time     `json:"resolved_at"`
}
