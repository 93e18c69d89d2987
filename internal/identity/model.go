package identity

import "time"

// User represents a registered wallet owner. The user's ID doubles as the
// ledger account identifier.
type User struct {
	ID           string
	Email        string
	Phone        string
	DisplayName  string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Registration captures the data required to open an account.
type Registration struct {
	Email       string
	Phone       string
	DisplayName string
	PIN         string
}
