package apply

import (
	"errors"
	"fmt"
	"strings"
)

// RateLimitError signals that the platform is throttling or blocking requests.
type RateLimitError struct {
	Platform string
	Message  string
	Cause    error
}

func (e *RateLimitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rate limited on %s: %s: %v", e.Platform, e.Message, e.Cause)
	}
	return fmt.Sprintf("rate limited on %s: %s", e.Platform, e.Message)
}

func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

// PermanentError signals a failure that no amount of retrying will fix, such
// as missing credentials or an unsupported platform.
type PermanentError struct {
	Message string
	Cause   error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permanent failure: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("permanent failure: %s", e.Message)
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// rateLimitNeedles are substrings that mark an untyped error as a rate limit.
var rateLimitNeedles = []string{
	"429",
	"too many requests",
	"temporarily blocked",
	"rate limit",
	"daily limit",
}

// permanentNeedles are substrings that mark an untyped error as permanent.
var permanentNeedles = []string{
	"requires authentication",
	"unsupported job platform",
	"resume not uploaded",
	"profile not saved",
}

// IsRateLimited reports whether err represents a rate-limit signal, either by
// type or by recognizable response text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	return containsAny(err.Error(), rateLimitNeedles)
}

// IsPermanent reports whether err represents a failure that must not be
// retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return containsAny(err.Error(), permanentNeedles)
}

// IsDailyLimit reports whether err indicates a daily throughput ceiling was
// hit; the worker pauses the owning campaign in that case instead of churning.
func IsDailyLimit(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "daily limit")
}

func containsAny(s string, needles []string) bool {
	t := strings.ToLower(s)
	for _, needle := range needles {
		if strings.Contains(t, needle) {
			return true
		}
	}
	return false
}
