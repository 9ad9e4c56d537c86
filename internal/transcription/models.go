package transcription

import "fmt"

// UpstreamError describes a failure talking to the speech-to-text service.
// Status is the HTTP status code, or 0 when the request never got a response.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transcription upstream returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("transcription request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
