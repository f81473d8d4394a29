package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrFatalAPI marks provider failures that will not succeed on retry
	// (bad credentials, exhausted quota, billing problems). Rate limits are
	// transient and are not fatal.
	ErrFatalAPI = errors.New("fatal LLM API error")

	// ErrNoChoices is returned when the provider answers without any choice.
	ErrNoChoices = errors.New("no response choices")
)

var fatalMarkers = []string{
	"credit balance",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
}

// fatalStatus matches an HTTP 401 or 403 as providers report it, e.g.
// "status code: 401" or "HTTP 403". Bare digits elsewhere (addresses,
// ports, IDs) do not count.
var fatalStatus = regexp.MustCompile(`(?:status(?:\s*code)?|http(?:/\d(?:\.\d)?)?)\s*[:=]?\s*(?:401|403)\b`)

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return fatalStatus.MatchString(msg)
}

// wrapFatalError tags err with ErrFatalAPI when it looks non-retryable.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
