package delivery

import (
	"errors"
	"fmt"
)

// ErrDeliveryFailed matches every Failure.
var ErrDeliveryFailed = errors.New("delivery failed")

// Failure describes why the sink did not accept a payload. StatusCode is zero
// when no HTTP response was received.
type Failure struct {
	StatusCode int
	Body       string
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.StatusCode != 0 && f.Body != "":
		return fmt.Sprintf("sink returned %d: %s", f.StatusCode, f.Body)
	case f.StatusCode != 0:
		return fmt.Sprintf("sink returned %d", f.StatusCode)
	case f.Err != nil:
		return fmt.Sprintf("deliver to sink: %v", f.Err)
	default:
		return ErrDeliveryFailed.Error()
	}
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool { return target == ErrDeliveryFailed }

// Transient reports whether the failure is likely to clear on its own
// (network trouble, timeouts, 5xx, 408, 429).
func (f *Failure) Transient() bool {
	if f.StatusCode == 0 {
		return true
	}
	return f.StatusCode >= 500 || f.StatusCode == 408 || f.StatusCode == 429
}
