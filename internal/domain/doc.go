// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (credentials, verification results, identities, key
// records, envelopes), the contracts between the orchestrator and its
// collaborators, and the error taxonomy used by every stage.
package domain
