package identity

import "time"

// User is a console principal.
type User struct {
	ID           string
	Login        string
	PasswordHash string
	Blocked      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
