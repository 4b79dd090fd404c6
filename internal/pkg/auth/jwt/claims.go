package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims for the DM chat server.
// It includes standard claims required by the JWT specification and the custom claims
// necessary for identifying the token holder on both the REST and realtime channels.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the unique identifier of the authenticated user. It is the only
	// identity fact the rest of the system trusts from a presented token.
	UserID string `json:"uid"`

	// Username is the display name of the user at token issue time. Informational only;
	// authorization decisions are always made against UserID.
	Username string `json:"username"`
}
