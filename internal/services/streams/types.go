package streamsvc

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// State is the registry's view of a cached handle. It is deliberately coarser
// than the provider's stream states: the registry only needs to know whether
// a handle can accept records or must be recreated.
type State int

const (
	// StateConnecting: the stream is being established.
	StateConnecting State = iota
	// StateOpen: the stream accepts records.
	StateOpen
	// StateDegraded: the stream is unhealthy and will be recreated on the
	// next get-or-create for its key.
	StateDegraded
	// StateClosed: the stream was closed and the handle is stale.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateDegraded:
		return "DEGRADED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Descriptor carries what the provider needs to open a stream for one table:
// the fully qualified destination table and the record message descriptor,
// both resolved at configuration-load time.
type Descriptor struct {
	TableName string
	Message   protoreflect.MessageDescriptor
}

// NotFoundError reports an operation against a table key with no cached
// stream. Ingestion never creates streams implicitly.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no active stream for table %q", e.Key)
}

// CreationError reports a failed stream creation. Nothing is cached for the
// key; the caller may retry, which runs the full creation sequence again.
type CreationError struct {
	Key string
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("creating stream for table %q: %v", e.Key, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// SchemaResolutionError reports that the record descriptor for a table could
// not be resolved. It surfaces wrapped in a CreationError.
type SchemaResolutionError struct {
	Key string
	Err error
}

func (e *SchemaResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolving record schema for table %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("no record schema for table %q", e.Key)
}

func (e *SchemaResolutionError) Unwrap() error { return e.Err }

// CloseError reports a failed stream close. Close paths are best-effort: the
// error is logged and the handle is removed regardless.
type CloseError struct {
	Key      string
	StreamID string
	Err      error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("closing stream %s for table %q: %v", e.StreamID, e.Key, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }
