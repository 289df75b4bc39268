package remote

import (
	"errors"
	"fmt"
)

// RequestError adalah jawaban non-2xx dari remote store.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("remote store: status %d: %s", e.Status, e.Message)
}

// IsValidation melaporkan apakah err adalah penolakan 4xx. Penolakan
// validasi tidak boleh di-retry; selain itu dianggap transient.
func IsValidation(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status >= 400 && re.Status < 500
	}
	return false
}
