package model

// Recipient is a deliverable address within a publisher's audience.
// Attributes feed template personalization ({first_name} and friends).
type Recipient struct {
	ID          string            `db:"id" json:"id"`
	PublisherID string            `db:"publisher_id" json:"publisher_id"`
	Email       string            `db:"email" json:"email"`
	Name        string            `db:"name" json:"name"`
	Segment     string            `db:"segment" json:"segment"`
	Attributes  map[string]string `db:"attributes" json:"attributes,omitempty"`
}
