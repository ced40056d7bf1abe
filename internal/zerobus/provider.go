package zerobus

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// StreamState is the provider's own vocabulary for stream liveness. Callers
// that need the registry vocabulary translate through their handle layer.
type StreamState int

// Stream states
const (
	StateOpening StreamState = iota
	StateOpened
	StateRecovering
	StateFlushing
	StateClosed
	StateFailed
)

// String returns the string representation of the stream state.
func (s StreamState) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateOpened:
		return "OPENED"
	case StateRecovering:
		return "RECOVERING"
	case StateFlushing:
		return "FLUSHING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors surfaced by RecordStream operations.
var (
	ErrStreamClosed      = errors.New("zerobus: stream closed")
	ErrStreamNotOpen     = errors.New("zerobus: stream not open")
	ErrStreamInterrupted = errors.New("zerobus: stream interrupted before durability ack")
)

// Credentials is the OAuth client pair attached to every stream creation.
// Opaque to this package beyond being placed on call metadata; never logged.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// TableProperties carries the immutable per-table metadata needed to open a
// stream: the fully qualified sink table and the record message descriptor.
type TableProperties struct {
	TableName  string
	Descriptor protoreflect.MessageDescriptor
}

// DurabilityAck reports that all records up to UpToOffset are persisted.
type DurabilityAck struct {
	UpToOffset int64
}

// AckCallback is invoked from the stream's receive path for every durability
// acknowledgment. It must be fast and non-blocking: no I/O, no locks shared
// with submission paths.
type AckCallback func(DurabilityAck)

// StreamOptions are the fixed operational parameters for a stream.
type StreamOptions struct {
	// MaxInflightRecords bounds unacknowledged records; submission blocks
	// once the window is full.
	MaxInflightRecords int
	// Recovery arms one transparent transport reopen per failure. Records
	// unacknowledged at the failure are failed, never replayed.
	Recovery bool
	// AckCallback, when set, observes every durability acknowledgment.
	AckCallback AckCallback
}

// RecordStream is one live, ordered, append-only connection to a table.
type RecordStream interface {
	// ID returns the provider-assigned stream identifier.
	ID() string
	// State returns the current liveness state.
	State() StreamState
	// IngestRecord submits one encoded record and returns its ack future.
	// Submission order is preserved end-to-end for a single stream.
	IngestRecord(ctx context.Context, payload []byte) (*Ack, error)
	// Flush blocks until every record submitted so far is durable.
	Flush(ctx context.Context) error
	// Close releases transport resources. Idempotent.
	Close(ctx context.Context) error
}

// Provider creates record streams. The stream manager never constructs
// streams itself.
type Provider interface {
	CreateStream(ctx context.Context, creds Credentials, table TableProperties, opts StreamOptions) (RecordStream, error)
}

// Ack is the future tied to one submitted record. It resolves when the
// provider reports the record's offset durable, or fails if the stream dies
// first.
type Ack struct {
	offset int64
	done   chan struct{}
	once   sync.Once
	err    error
}

// NewAck returns an unresolved ack for the given offset. Stream
// implementations resolve or fail it exactly once.
func NewAck(offset int64) *Ack {
	return &Ack{offset: offset, done: make(chan struct{})}
}

// Offset returns the stream offset assigned to the record.
func (a *Ack) Offset() int64 { return a.offset }

// Done returns a channel closed when the ack resolves or fails.
func (a *Ack) Done() <-chan struct{} { return a.done }

// Err returns the failure cause, or nil. Only meaningful after Done is closed.
func (a *Ack) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Await blocks until the ack resolves, fails, or ctx expires. Callers bound
// the wait with a context deadline; the ack itself imposes none.
func (a *Ack) Await(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve marks the record durable. No-op if already settled.
func (a *Ack) Resolve() {
	a.once.Do(func() { close(a.done) })
}

// Fail settles the ack with err. No-op if already settled.
func (a *Ack) Fail(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}
