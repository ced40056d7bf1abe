package zerobus

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"

	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

// reopenFunc re-establishes the transport stream after a failure. It repeats
// the header/stream-id handshake and returns the fresh stream.
type reopenFunc func(ctx context.Context) (grpc.ClientStream, context.CancelFunc, string, error)

const recoveryBackoff = 200 * time.Millisecond

// grpcStream implements RecordStream over one bidirectional gRPC stream.
//
// Offsets are assigned in send order under sendMu, so the pending slice is
// always a FIFO aligned with the transport's in-order delivery. Each pending
// ack holds exactly one slot of the in-flight window; the slot is released
// when the ack resolves or fails.
type grpcStream struct {
	id     string
	table  TableProperties
	opts   StreamOptions
	logger logpkg.Logger
	reopen reopenFunc

	// window bounds unacknowledged records; submit blocks when full.
	window chan struct{}

	// sendMu serializes SendMsg and keeps offset assignment in send order.
	sendMu sync.Mutex

	mu         sync.Mutex
	state      StreamState
	cs         grpc.ClientStream
	cancel     context.CancelFunc
	recvDone   chan struct{}
	closedCh   chan struct{}
	notify     chan struct{}
	nextOffset int64
	lastAcked  int64
	pending    []*Ack
	recovered  bool
}

func newGRPCStream(id string, table TableProperties, opts StreamOptions, cs grpc.ClientStream, cancel context.CancelFunc, reopen reopenFunc, logger logpkg.Logger) *grpcStream {
	capacity := opts.MaxInflightRecords
	if capacity <= 0 {
		capacity = 1
	}
	s := &grpcStream{
		id:       id,
		table:    table,
		opts:     opts,
		logger:   logger.With(logpkg.Str("table", table.TableName), logpkg.Str("stream_id", id)),
		reopen:   reopen,
		window:   make(chan struct{}, capacity),
		state:    StateOpened,
		cs:       cs,
		cancel:   cancel,
		recvDone: make(chan struct{}),
		closedCh: make(chan struct{}),
		notify:   make(chan struct{}),
	}
	go s.recvLoop(cs, s.recvDone)
	return s
}

// ID returns the provider-assigned stream identifier.
func (s *grpcStream) ID() string { return s.id }

// State returns the current liveness state.
func (s *grpcStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IngestRecord submits one encoded record. Blocks while the in-flight window
// is full; returns the ack future on success.
func (s *grpcStream) IngestRecord(ctx context.Context, payload []byte) (*Ack, error) {
	select {
	case s.window <- struct{}{}:
	case <-s.closedCh:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.sendMu.Lock()
	s.mu.Lock()
	if s.state != StateOpened && s.state != StateFlushing {
		st := s.state
		s.mu.Unlock()
		s.sendMu.Unlock()
		s.releaseSlot()
		if st == StateClosed {
			return nil, ErrStreamClosed
		}
		return nil, ErrStreamNotOpen
	}
	s.nextOffset++
	ack := NewAck(s.nextOffset)
	s.pending = append(s.pending, ack)
	cs := s.cs
	s.mu.Unlock()

	err := cs.SendMsg(encodeRecordFrame(ack.offset, payload))
	s.sendMu.Unlock()
	if err != nil {
		s.transportError(err)
		return nil, err
	}
	return ack, nil
}

// Flush blocks until every record submitted so far is durable.
func (s *grpcStream) Flush(ctx context.Context) error {
	s.mu.Lock()
	target := s.nextOffset
	if target <= s.lastAcked {
		s.mu.Unlock()
		return nil
	}
	switch s.state {
	case StateOpened, StateFlushing:
		// A flush already in progress does not turn a second flusher away;
		// both wait for the drain.
	case StateClosed:
		s.mu.Unlock()
		return ErrStreamClosed
	default:
		s.mu.Unlock()
		return ErrStreamNotOpen
	}
	s.state = StateFlushing
	s.notifyLocked()
	cs := s.cs
	s.mu.Unlock()

	s.sendMu.Lock()
	err := cs.SendMsg(encodeFlushFrame(target))
	s.sendMu.Unlock()
	if err != nil {
		s.transportError(err)
		return err
	}

	defer func() {
		s.mu.Lock()
		if s.state == StateFlushing {
			s.state = StateOpened
			s.notifyLocked()
		}
		s.mu.Unlock()
	}()
	for {
		s.mu.Lock()
		if s.lastAcked >= target {
			s.mu.Unlock()
			return nil
		}
		switch s.state {
		case StateClosed:
			s.mu.Unlock()
			return ErrStreamClosed
		case StateFailed, StateRecovering:
			s.mu.Unlock()
			return ErrStreamInterrupted
		}
		ch := s.notify
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases transport resources and fails outstanding acks. Idempotent.
func (s *grpcStream) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	close(s.closedCh)
	failed := s.pending
	s.pending = nil
	cs := s.cs
	cancel := s.cancel
	recvDone := s.recvDone
	s.notifyLocked()
	s.mu.Unlock()

	for _, a := range failed {
		a.Fail(ErrStreamClosed)
		s.releaseSlot()
	}

	var err error
	if cs != nil {
		err = cs.CloseSend()
	}
	select {
	case <-recvDone:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cancel != nil {
		cancel()
	}
	s.logger.Info("stream closed")
	return err
}

func (s *grpcStream) recvLoop(cs grpc.ClientStream, done chan struct{}) {
	defer close(done)
	var buf []byte
	for {
		if err := cs.RecvMsg(&buf); err != nil {
			s.transportError(err)
			return
		}
		off, err := decodeAckFrame(buf)
		if err != nil {
			s.transportError(err)
			return
		}
		s.applyAck(off)
	}
}

func (s *grpcStream) applyAck(off int64) {
	s.mu.Lock()
	if off > s.lastAcked {
		s.lastAcked = off
	}
	var resolved []*Ack
	for len(s.pending) > 0 && s.pending[0].offset <= off {
		resolved = append(resolved, s.pending[0])
		s.pending = s.pending[1:]
	}
	s.notifyLocked()
	cb := s.opts.AckCallback
	s.mu.Unlock()

	for _, a := range resolved {
		a.Resolve()
		s.releaseSlot()
	}
	// Invoked on the receive path; the callback contract is non-blocking.
	if cb != nil {
		cb(DurabilityAck{UpToOffset: off})
	}
}

// transportError moves the stream to recovering or failed and fails every
// outstanding ack. Records are never replayed across a reopen.
func (s *grpcStream) transportError(err error) {
	s.mu.Lock()
	switch s.state {
	case StateClosed, StateRecovering, StateFailed:
		s.mu.Unlock()
		return
	}
	recover := s.opts.Recovery && s.reopen != nil && !s.recovered
	if recover {
		s.state = StateRecovering
		s.recovered = true
	} else {
		s.state = StateFailed
	}
	failed := s.pending
	s.pending = nil
	s.notifyLocked()
	s.mu.Unlock()

	for _, a := range failed {
		a.Fail(ErrStreamInterrupted)
		s.releaseSlot()
	}
	s.logger.Warn("stream transport error",
		logpkg.Err(err),
		logpkg.Bool("recovering", recover),
	)
	if recover {
		go s.recoverTransport()
	}
}

func (s *grpcStream) recoverTransport() {
	time.Sleep(recoveryBackoff)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cs, cancelStream, id, err := s.reopen(ctx)
	if err != nil {
		s.mu.Lock()
		if s.state == StateRecovering {
			s.state = StateFailed
			s.notifyLocked()
		}
		s.mu.Unlock()
		s.logger.Error("stream recovery failed", logpkg.Err(err))
		return
	}
	s.mu.Lock()
	if s.state != StateRecovering {
		// Closed while we were reconnecting.
		s.mu.Unlock()
		cancelStream()
		return
	}
	if old := s.cancel; old != nil {
		old()
	}
	s.cs = cs
	s.cancel = cancelStream
	s.recvDone = make(chan struct{})
	s.state = StateOpened
	s.notifyLocked()
	done := s.recvDone
	s.mu.Unlock()
	s.logger.Info("stream recovered", logpkg.Str("transport_stream_id", id))
	go s.recvLoop(cs, done)
}

func (s *grpcStream) releaseSlot() {
	select {
	case <-s.window:
	default:
	}
}

// notifyLocked wakes waiters on ack/state changes. Callers hold s.mu.
func (s *grpcStream) notifyLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}
