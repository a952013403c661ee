package models

// User is the signed-in account as returned by login and register.
type User struct {
	ID       string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Participant returns the roster entry for this account.
func (u User) Participant() Participant {
	return Participant{UserID: u.ID, Username: u.Username}
}
