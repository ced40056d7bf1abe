package streamsvc

import (
	"context"

	"github.com/PortoLucas1/zerobus-station/internal/zerobus"
)

// Handle is the registry's wrapper around one provider stream. It owns the
// stream's ack dispatcher and translates provider states into the registry
// vocabulary. Handles are immutable after construction; liveness is read from
// the underlying stream on demand.
type Handle struct {
	key    string
	stream zerobus.RecordStream
	disp   *ackDispatcher
}

func newHandle(key string, stream zerobus.RecordStream, disp *ackDispatcher) *Handle {
	return &Handle{key: key, stream: stream, disp: disp}
}

// Key returns the table key this handle serves.
func (h *Handle) Key() string { return h.key }

// ID returns the provider-assigned stream identifier.
func (h *Handle) ID() string { return h.stream.ID() }

// State maps the provider's stream state onto the registry vocabulary.
func (h *Handle) State() State {
	switch h.stream.State() {
	case zerobus.StateOpening:
		return StateConnecting
	case zerobus.StateOpened, zerobus.StateFlushing:
		return StateOpen
	case zerobus.StateRecovering, zerobus.StateFailed:
		return StateDegraded
	case zerobus.StateClosed:
		return StateClosed
	default:
		return StateDegraded
	}
}

// HighWater returns the highest durable offset observed on this stream.
func (h *Handle) HighWater() int64 { return h.disp.HighWater() }

// Submit appends one encoded record and returns its ack future. Blocks while
// the stream's in-flight window is full.
func (h *Handle) Submit(ctx context.Context, payload []byte) (*zerobus.Ack, error) {
	return h.stream.IngestRecord(ctx, payload)
}

// Flush blocks until every record submitted so far is durable.
func (h *Handle) Flush(ctx context.Context) error {
	return h.stream.Flush(ctx)
}

// close releases the stream and stops the dispatcher. The dispatcher is
// stopped even when the stream close fails.
func (h *Handle) close(ctx context.Context) error {
	err := h.stream.Close(ctx)
	h.disp.Close()
	return err
}
