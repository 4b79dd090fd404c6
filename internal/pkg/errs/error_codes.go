/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Conversation and Messaging Errors
const (
	// ErrInvalidParticipants indicates an attempt to open a conversation between a user and themselves.
	ErrInvalidParticipants = 2101

	// ErrEmptyContent indicates that a message was sent with an empty content payload.
	ErrEmptyContent = 2102

	// ErrRecipientNotFound indicates that the message recipient does not reference a registered user.
	ErrRecipientNotFound = 2103

	// ErrConversationNotFound indicates that the requested conversation does not exist.
	ErrConversationNotFound = 2104

	// ErrNotAuthorized indicates that the caller is not a participant of the requested conversation.
	ErrNotAuthorized = 2105
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrInvalidUsername indicates that the username failed format validation.
	ErrInvalidUsername = 3001

	// ErrInvalidPassword indicates that the password failed length validation.
	ErrInvalidPassword = 3002

	// ErrUserAlreadyExists indicates that the requested username is already registered.
	ErrUserAlreadyExists = 3003

	// ErrInvalidCredentials indicates a failed username/password check during login.
	ErrInvalidCredentials = 3004

	// ErrUserNotFound indicates that no account matches the requested user identity.
	ErrUserNotFound = 3005

	// ErrAlreadyLoggedIn indicates that an authenticated caller attempted to register or log in again.
	ErrAlreadyLoggedIn = 3006

	// ErrUnauthorized indicates that a protected endpoint was called without a valid identity token.
	ErrUnauthorized = 3101

	// ErrNotAuthenticated indicates an action attempted on a realtime connection
	// that has not completed the authentication handshake.
	ErrNotAuthenticated = 3102

	// ErrInvalidToken indicates that the token presented on the realtime channel is missing or invalid.
	ErrInvalidToken = 3103
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrPersistence indicates that the persistence layer rejected or failed the operation.
	// The caller may retry the request.
	ErrPersistence = 5001
)
