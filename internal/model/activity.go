package model

import "time"

// TimeEntry is one block of logged work. Entries are immutable once logged;
// only their author may delete them.
type TimeEntry struct {
	ID          string
	ItemID      string
	AuthorID    string
	Hours       float64
	Description string
	Date        time.Time
	CreatedAt   time.Time
}

type Comment struct {
	ID        string
	ItemID    string
	AuthorID  string
	Content   string // raw text, @mentions left in place
	CreatedAt time.Time
	Mentions  []Mention
}

// Mention is an @username token in a comment resolved to a known user.
type Mention struct {
	UserID   string
	Username string
}

// Attachment is bookkeeping for a file stored elsewhere; URL is the handle
// the file store returned.
type Attachment struct {
	ID         string
	ItemID     string
	Filename   string
	Size       int64
	MimeType   string
	UploaderID string
	URL        string
	CreatedAt  time.Time
}

// User is the identity collaborator's view of a person.
type User struct {
	ID        string
	Username  string
	Name      string
	CreatedAt time.Time
}
