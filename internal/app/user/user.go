/*
Package user contains the core data structure for a registered account.

It defines the basic representation of a user within the messaging system,
used for passing user information both internally and to clients.
*/
package user

import "time"

// User represents the identity of a registered account. The credential hash
// never leaves the store layer and is deliberately not part of this struct.
type User struct {
	// ID is the opaque unique identifier for the user.
	ID string `json:"id"`

	// Username is the unique display name. Uniqueness is case-sensitive;
	// search over usernames is case-insensitive.
	Username string `json:"username"`

	// CreatedAt is the registration timestamp.
	CreatedAt time.Time `json:"createdAt"`

	// LastActive is updated on login.
	LastActive time.Time `json:"lastActive"`
}
