package uploader

import "fmt"

// Kind classifies a failed attempt. The caller only branches on kind:
// file errors are unrecoverable for that capture, network and server
// errors leave the capture queued for a later attempt.
type Kind int

const (
	// KindFile means the source file is missing or empty.
	KindFile Kind = iota
	// KindNetwork means the request never produced an HTTP response.
	KindNetwork
	// KindServer means the server answered with a non-2xx status.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// Error is the typed failure of one upload attempt.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, KindServer only
	Detail string // server-provided detail, may be empty
	Err    error  // underlying cause, KindFile and KindNetwork
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		if e.Detail != "" {
			return fmt.Sprintf("server rejected upload (HTTP %d): %s", e.Status, e.Detail)
		}
		return fmt.Sprintf("server rejected upload (HTTP %d)", e.Status)
	default:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the short human-readable form shown in failure banners.
func (e *Error) Message() string {
	switch e.Kind {
	case KindServer:
		if e.Detail != "" {
			return e.Detail
		}
		return fmt.Sprintf("server error (HTTP %d)", e.Status)
	case KindNetwork:
		return "network error"
	default:
		return "capture file unavailable"
	}
}
