package models

import "time"

// User is the profile row resolved for an authenticated connection.
type User struct {
	ID        int       `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PublicUser is the identity shape sent over the wire in presence and
// room events.
type PublicUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Public strips fields that never leave the server.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}
