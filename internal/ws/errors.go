package ws

// Stable error codes carried by outbound error events.
const (
	CodeInvalidCredential  = "INVALID_CREDENTIAL"
	CodeUnknownUser        = "UNKNOWN_USER"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidData        = "INVALID_DATA"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// EventError is a per-action failure surfaced to the client as an error
// event. The connection stays open.
type EventError struct {
	Code    string
	Message string
}

func (e *EventError) Error() string {
	return e.Message
}

var errForbidden = &EventError{Code: CodeForbidden, Message: "not a member of this chat"}
