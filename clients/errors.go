package clients

import "fmt"

// ClientError describes a failed call to an upstream service.
type ClientError struct {
	Service    string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, msg)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call could succeed.
func (e *ClientError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

func newClientError(service, op string, status int, err error, message string) *ClientError {
	return &ClientError{
		Service:    service,
		Op:         op,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}
