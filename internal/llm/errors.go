package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind distinguishes transport failures for user-facing messaging.
// The extraction core treats every kind the same way: no usable text.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindAuth
	KindRateLimit
	KindTimeout
	KindConnection
)

// TransportError wraps a failed generator call with its kind.
type TransportError struct {
	Kind ErrorKind
	err  error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindAuth:
		return fmt.Sprintf("API authentication failed, check the configured API key: %v", e.err)
	case KindRateLimit:
		return fmt.Sprintf("API rate limit exceeded, try again later: %v", e.err)
	case KindTimeout:
		return fmt.Sprintf("API request timed out, the service may be slow or unavailable: %v", e.err)
	case KindConnection:
		return fmt.Sprintf("could not connect to the generation API: %v", e.err)
	default:
		return fmt.Sprintf("generation API call failed: %v", e.err)
	}
}

func (e *TransportError) Unwrap() error { return e.err }

// classify maps an error from the OpenAI-compatible client to a kinded
// transport error.
func classify(err error) *TransportError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return &TransportError{Kind: KindAuth, err: err}
		case 429:
			return &TransportError{Kind: KindRateLimit, err: err}
		}
		return &TransportError{Kind: KindGeneric, err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case 401, 403:
			return &TransportError{Kind: KindAuth, err: err}
		case 429:
			return &TransportError{Kind: KindRateLimit, err: err}
		}
		return &TransportError{Kind: KindGeneric, err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: KindTimeout, err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &TransportError{Kind: KindTimeout, err: err}
		}
		return &TransportError{Kind: KindConnection, err: err}
	}

	return &TransportError{Kind: KindGeneric, err: err}
}
