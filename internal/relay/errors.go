package relay

import "errors"

// Error codes sent back in negative acks.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "conversation_not_found"
	ErrCodeNotParticipant = "not_participant"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternal       = "internal_error"
)

var (
	ErrBadRequest     = errors.New("bad request")
	ErrNotFound       = errors.New("conversation not found")
	ErrNotParticipant = errors.New("not a participant")
	ErrRateLimited    = errors.New("rate limited")
)

// RelayError wraps a code and human-readable message.
type RelayError struct {
	Code    string
	Message string
	Err     error
}

func (e *RelayError) Error() string {
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func relayError(code, msg string, err error) *RelayError {
	return &RelayError{Code: code, Message: msg, Err: err}
}

// Code returns the error code of err, or ErrCodeInternal for errors that
// did not originate in the relay.
func Code(err error) string {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeInternal
}
