package discord

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"pipebot/pkg/retrylimit"
)

// restError exposes the status of a failed REST call to retrylimit.
type restError struct {
	err   error
	code  int
	after time.Duration
}

func (e *restError) Error() string             { return e.err.Error() }
func (e *restError) Unwrap() error             { return e.err }
func (e *restError) StatusCode() int           { return e.code }
func (e *restError) RetryAfter() time.Duration { return e.after }

// classify prepares err for retrylimit.Do: 4xx responses other than 429
// are permanent, everything else is worth another attempt.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return err
	}

	code := rest.Response.StatusCode
	wrapped := &restError{err: err, code: code, after: retryAfter(rest.Response.Header)}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return retrylimit.Permanent(wrapped)
	}
	return wrapped
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
