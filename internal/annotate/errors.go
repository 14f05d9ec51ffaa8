package annotate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks an image that no longer exists on disk.
	ErrNotFound = errors.New("file not found")
	// ErrRateLimited marks a refusal because a quota is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidResponse marks a response the client could not use.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrNetwork marks transport failures and server-side errors.
	ErrNetwork = errors.New("network failure")
)

// Kind classifies an annotation error for the scheduler.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindRateLimited
	KindInvalidResponse
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidResponse:
		return "invalid_response"
	case KindNetwork:
		return "network"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindOf maps err to its Kind. Errors carrying no marker are treated as
// network failures so the item is preserved.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	default:
		return KindNetwork
	}
}

// Wrap builds an error that includes service and operation context while
// tagging it with marker for later classification. marker should be one of
// the exported sentinels; nil defaults to ErrNetwork.
func Wrap(marker error, service, operation, message string, err error) error {
	detail := buildDetail(service, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(service, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{service, operation, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "annotation failure"
	}
	return strings.Join(parts, ": ")
}
