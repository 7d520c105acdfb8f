package models

// Contact is a row in the contact store. Contacts are imported by external
// tooling; this service only reads them and flips EmailSent after a dispatch
// attempt.
type Contact struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	Country  string `json:"country"`
	Position string `json:"position"`
	Email    string `json:"email"`

	// EmailSent is set after a dispatch attempt. It is the primary guard
	// against re-selection and is never cleared by this service.
	EmailSent bool `json:"email_sent"`
}
