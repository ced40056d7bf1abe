package streamsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/PortoLucas1/zerobus-station/internal/config"
	"github.com/PortoLucas1/zerobus-station/internal/schema"
	"github.com/PortoLucas1/zerobus-station/internal/zerobus"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

type fakeStream struct {
	id string
	cb zerobus.AckCallback
	// closeGate, when set, stalls Close until the channel closes.
	closeGate chan struct{}

	mu       sync.Mutex
	state    zerobus.StreamState
	records  [][]byte
	flushes  int
	closes   int
	closeErr error
	next     int64
}

func (f *fakeStream) ID() string { return f.id }

func (f *fakeStream) State() zerobus.StreamState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) setState(s zerobus.StreamState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeStream) IngestRecord(ctx context.Context, payload []byte) (*zerobus.Ack, error) {
	f.mu.Lock()
	if f.state == zerobus.StateClosed {
		f.mu.Unlock()
		return nil, zerobus.ErrStreamClosed
	}
	f.next++
	off := f.next
	f.records = append(f.records, payload)
	cb := f.cb
	f.mu.Unlock()
	ack := zerobus.NewAck(off)
	ack.Resolve()
	if cb != nil {
		cb(zerobus.DurabilityAck{UpToOffset: off})
	}
	return ack, nil
}

func (f *fakeStream) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeStream) Close(ctx context.Context) error {
	if f.closeGate != nil {
		select {
		case <-f.closeGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.state = zerobus.StateClosed
	return f.closeErr
}

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	inflight int
	maxSeen  int
	seq      int
	streams  []*fakeStream
	err      error
	// gate, when set for a table, blocks creation until the channel closes.
	gate map[string]chan struct{}
	// createDelay widens the creation window for overlap detection.
	createDelay time.Duration
	// closeErr and closeGate are stamped onto created streams.
	closeErr  error
	closeGate chan struct{}
}

func (p *fakeProvider) CreateStream(ctx context.Context, creds zerobus.Credentials, table zerobus.TableProperties, opts zerobus.StreamOptions) (zerobus.RecordStream, error) {
	p.mu.Lock()
	p.calls++
	p.inflight++
	if p.inflight > p.maxSeen {
		p.maxSeen = p.inflight
	}
	gate := p.gate[table.TableName]
	delay := p.createDelay
	err := p.err
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inflight--
		p.mu.Unlock()
	}()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.seq++
	st := &fakeStream{
		id:        fmt.Sprintf("stream-%d", p.seq),
		cb:        opts.AckCallback,
		closeGate: p.closeGate,
		state:     zerobus.StateOpened,
		closeErr:  p.closeErr,
	}
	p.streams = append(p.streams, st)
	p.mu.Unlock()
	return st, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) maxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSeen
}

func testDescriptor(t *testing.T, table string) Descriptor {
	t.Helper()
	codec, err := schema.NewCodec(config.TableConfig{
		TableName:   table,
		MessageName: "Record",
		Fields:      []config.FieldConfig{{Name: "id", Type: "string"}},
	})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return Descriptor{TableName: table, Message: codec.Descriptor()}
}

func newTestManager(p *fakeProvider) *Manager {
	logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel))
	return NewWithLogger(p, zerobus.Credentials{ClientID: "c", ClientSecret: "s"}, logger)
}

func TestGetOrCreateCachesOpenHandle(t *testing.T) {
	p := &fakeProvider{}
	m := newTestManager(p)
	desc := testDescriptor(t, "main.t.a")

	h1, err := m.GetOrCreateStream(context.Background(), "a", desc)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h2, err := m.GetOrCreateStream(context.Background(), "a", desc)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected cached handle, got a new one")
	}
	if p.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1", p.callCount())
	}
	if h1.State() != StateOpen {
		t.Fatalf("state: %v", h1.State())
	}
}

func TestConcurrentGetOrCreateSingleCreation(t *testing.T) {
	gate := make(chan struct{})
	p := &fakeProvider{gate: map[string]chan struct{}{"main.t.a": gate}}
	m := newTestManager(p)
	desc := testDescriptor(t, "main.t.a")

	const n = 20
	handles := make([]*Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = m.GetOrCreateStream(context.Background(), "a", desc)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
	if p.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1", p.callCount())
	}
}

func TestPerKeyIndependence(t *testing.T) {
	gate := make(chan struct{})
	p := &fakeProvider{gate: map[string]chan struct{}{"main.t.slow": gate}}
	m := newTestManager(p)
	defer close(gate)
	slowDesc := testDescriptor(t, "main.t.slow")
	fastDesc := testDescriptor(t, "main.t.fast")

	go func() {
		_, _ = m.GetOrCreateStream(context.Background(), "slow", slowDesc)
	}()
	time.Sleep(20 * time.Millisecond)

	// A stalled creation for one key must not delay another key.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := m.GetOrCreateStream(context.Background(), "fast", fastDesc); err != nil {
			t.Errorf("fast key: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("creation for independent key blocked")
	}
}

func TestRecreateOnDegradedStream(t *testing.T) {
	p := &fakeProvider{}
	m := newTestManager(p)
	desc := testDescriptor(t, "main.t.a")

	h1, err := m.GetOrCreateStream(context.Background(), "a", desc)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p.streams[0].setState(zerobus.StateFailed)
	if h1.State() != StateDegraded {
		t.Fatalf("state after failure: %v", h1.State())
	}

	h2, err := m.GetOrCreateStream(context.Background(), "a", desc)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if h2 == h1 || h2.ID() == h1.ID() {
		t.Fatalf("expected a fresh stream, got the stale one")
	}
	if p.streams[0].closes != 1 {
		t.Fatalf("stale stream closes = %d, want 1", p.streams[0].closes)
	}
	if p.callCount() != 2 {
		t.Fatalf("provider calls = %d, want 2", p.callCount())
	}
}

func TestIngestWithoutStreamIsNotFound(t *testing.T) {
	m := newTestManager(&fakeProvider{})
	_, err := m.IngestRecord(context.Background(), "a", []byte("{}"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
	if nf.Key != "a" {
		t.Fatalf("key: %q", nf.Key)
	}
	if err := m.Flush(context.Background(), "a"); !errors.As(err, &nf) {
		t.Fatalf("flush: want NotFoundError, got %v", err)
	}
}

func TestIngestRoutesToCachedStream(t *testing.T) {
	p := &fakeProvider{}
	m := newTestManager(p)
	if _, err := m.GetOrCreateStream(context.Background(), "a", testDescriptor(t, "main.t.a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	ack, err := m.IngestRecord(context.Background(), "a", []byte("payload"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := ack.Await(context.Background()); err != nil {
		t.Fatalf("await: %v", err)
	}
	if got := len(p.streams[0].records); got != 1 {
		t.Fatalf("records on stream = %d, want 1", got)
	}
	if err := m.Flush(context.Background(), "a"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if p.streams[0].flushes != 1 {
		t.Fatalf("flushes = %d, want 1", p.streams[0].flushes)
	}
}

func TestFailedCreationCachesNothing(t *testing.T) {
	p := &fakeProvider{err: errors.New("endpoint unreachable")}
	m := newTestManager(p)
	desc := testDescriptor(t, "main.t.a")

	_, err := m.GetOrCreateStream(context.Background(), "a", desc)
	var ce *CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("want CreationError, got %v", err)
	}
	var nf *NotFoundError
	if _, err := m.IngestRecord(context.Background(), "a", []byte("{}")); !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError after failed create, got %v", err)
	}
	if len(m.ActiveTables()) != 0 {
		t.Fatalf("active tables after failed create: %v", m.ActiveTables())
	}

	// A retry runs the full creation sequence again.
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
	if _, err := m.GetOrCreateStream(context.Background(), "a", desc); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if p.callCount() != 2 {
		t.Fatalf("provider calls = %d, want 2", p.callCount())
	}
}

func TestMissingDescriptorIsSchemaResolutionError(t *testing.T) {
	m := newTestManager(&fakeProvider{})
	_, err := m.GetOrCreateStream(context.Background(), "a", Descriptor{TableName: "main.t.a"})
	var ce *CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("want CreationError, got %v", err)
	}
	var sre *SchemaResolutionError
	if !errors.As(err, &sre) {
		t.Fatalf("want wrapped SchemaResolutionError, got %v", err)
	}
}

func TestCloseAllSurvivesFailingClose(t *testing.T) {
	p := &fakeProvider{closeErr: errors.New("transport torn down")}
	m := newTestManager(p)
	for _, k := range []string{"a", "b", "c"} {
		if _, err := m.GetOrCreateStream(context.Background(), k, testDescriptor(t, "main.t."+k)); err != nil {
			t.Fatalf("create %s: %v", k, err)
		}
	}
	m.CloseAll()
	if got := m.ActiveTables(); len(got) != 0 {
		t.Fatalf("active tables after CloseAll: %v", got)
	}
	for i, st := range p.streams {
		if st.closes != 1 {
			t.Fatalf("stream %d closes = %d, want 1", i, st.closes)
		}
	}
	var nf *NotFoundError
	if _, err := m.IngestRecord(context.Background(), "a", []byte("{}")); !errors.As(err, &nf) {
		t.Fatalf("ingest after CloseAll: %v", err)
	}
}

func TestHandleRoutableUntilCloseAttempted(t *testing.T) {
	gate := make(chan struct{})
	p := &fakeProvider{closeGate: gate}
	m := newTestManager(p)
	if _, err := m.GetOrCreateStream(context.Background(), "a", testDescriptor(t, "main.t.a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.CloseStream("a")
	}()
	time.Sleep(20 * time.Millisecond)
	// The close is still in flight; records keep routing to the handle.
	if _, err := m.IngestRecord(context.Background(), "a", []byte("x")); err != nil {
		t.Fatalf("ingest during close: %v", err)
	}
	close(gate)
	<-done
	var nf *NotFoundError
	if _, err := m.IngestRecord(context.Background(), "a", []byte("x")); !errors.As(err, &nf) {
		t.Fatalf("ingest after close: want NotFoundError, got %v", err)
	}
}

func TestCloseStreamUnknownKeyIsNoop(t *testing.T) {
	m := newTestManager(&fakeProvider{})
	m.CloseStream("never-created")
	m.RemoveTable("never-created")
}

func TestRemoveTableClosesStreamAndKeepsLock(t *testing.T) {
	p := &fakeProvider{}
	m := newTestManager(p)
	if _, err := m.GetOrCreateStream(context.Background(), "a", testDescriptor(t, "main.t.a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	lk := m.keyLock("a")
	m.RemoveTable("a")
	if p.streams[0].closes != 1 {
		t.Fatalf("closes = %d, want 1", p.streams[0].closes)
	}
	if len(m.ActiveTables()) != 0 {
		t.Fatalf("active tables after RemoveTable: %v", m.ActiveTables())
	}
	// The creation lock outlives the table: a caller still holding the old
	// pointer must exclude later creations for the same key.
	if m.keyLock("a") != lk {
		t.Fatalf("key lock replaced by RemoveTable")
	}
}

func TestRemoveTableKeepsCreationSerialized(t *testing.T) {
	p := &fakeProvider{createDelay: 2 * time.Millisecond}
	m := newTestManager(p)
	desc := testDescriptor(t, "main.t.a")

	// Creations racing a table removal must still run one at a time: two
	// overlapping provider calls for one key would leak an open stream.
	for i := 0; i < 25; i++ {
		var wg sync.WaitGroup
		wg.Add(4)
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				_, _ = m.GetOrCreateStream(context.Background(), "a", desc)
			}()
		}
		go func() {
			defer wg.Done()
			m.RemoveTable("a")
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			_, _ = m.GetOrCreateStream(context.Background(), "a", desc)
		}()
		wg.Wait()
	}
	if got := p.maxConcurrent(); got != 1 {
		t.Fatalf("concurrent provider creations for one key = %d, want 1", got)
	}
}

func TestActiveTablesSorted(t *testing.T) {
	p := &fakeProvider{}
	m := newTestManager(p)
	for _, k := range []string{"zulu", "alpha", "mike"} {
		if _, err := m.GetOrCreateStream(context.Background(), k, testDescriptor(t, "main.t."+k)); err != nil {
			t.Fatalf("create %s: %v", k, err)
		}
	}
	got := m.ActiveTables()
	want := []string{"alpha", "mike", "zulu"}
	if len(got) != len(want) {
		t.Fatalf("tables: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tables: %v, want %v", got, want)
		}
	}
}

func TestStreamState(t *testing.T) {
	p := &fakeProvider{}
	m := newTestManager(p)
	if _, ok := m.StreamState("a"); ok {
		t.Fatalf("expected no state before creation")
	}
	if _, err := m.GetOrCreateStream(context.Background(), "a", testDescriptor(t, "main.t.a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	st, ok := m.StreamState("a")
	if !ok || st != StateOpen {
		t.Fatalf("state = %v ok=%v", st, ok)
	}
}
