package streamsvc

import (
	"sync"
	"sync/atomic"

	"github.com/PortoLucas1/zerobus-station/internal/zerobus"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

const (
	// ackQueueDepth bounds the hand-off queue between the provider's receive
	// path and the dispatcher goroutine.
	ackQueueDepth = 1024
	// ackLogEvery throttles progress logging to roughly one line per this
	// many acknowledged offsets.
	ackLogEvery = 1000
)

// ackDispatcher consumes durability acknowledgments for one stream. Enqueue
// is called from the provider's receive path and must never block it: when
// the queue is full the ack is dropped. Dropping is safe because offsets are
// cumulative; the next ack carries an equal or higher watermark.
type ackDispatcher struct {
	key    string
	logger logpkg.Logger

	ch   chan zerobus.DurabilityAck
	done chan struct{}
	wg   sync.WaitGroup

	highWater  atomic.Int64
	dropped    atomic.Int64
	lastLogged int64
}

func newAckDispatcher(key string, logger logpkg.Logger) *ackDispatcher {
	d := &ackDispatcher{
		key:    key,
		logger: logger.With(logpkg.Str("table", key)),
		ch:     make(chan zerobus.DurabilityAck, ackQueueDepth),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue hands one ack to the dispatcher. Non-blocking; drops when full or
// after Close.
func (d *ackDispatcher) Enqueue(ack zerobus.DurabilityAck) {
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.ch <- ack:
	default:
		d.dropped.Add(1)
	}
}

// HighWater returns the highest durability offset observed so far.
func (d *ackDispatcher) HighWater() int64 { return d.highWater.Load() }

// Dropped returns how many acks were discarded because the queue was full.
func (d *ackDispatcher) Dropped() int64 { return d.dropped.Load() }

// Close stops the dispatcher after draining queued acks. Idempotent.
func (d *ackDispatcher) Close() {
	select {
	case <-d.done:
		return
	default:
		close(d.done)
	}
	d.wg.Wait()
}

func (d *ackDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case ack := <-d.ch:
			d.observe(ack)
		case <-d.done:
			// Drain whatever arrived before the close won the race.
			for {
				select {
				case ack := <-d.ch:
					d.observe(ack)
				default:
					return
				}
			}
		}
	}
}

func (d *ackDispatcher) observe(ack zerobus.DurabilityAck) {
	// Watermark is monotonic; a late lower ack carries no information.
	for {
		cur := d.highWater.Load()
		if ack.UpToOffset <= cur {
			return
		}
		if d.highWater.CompareAndSwap(cur, ack.UpToOffset) {
			break
		}
	}
	if ack.UpToOffset-d.lastLogged >= ackLogEvery {
		d.lastLogged = ack.UpToOffset
		d.logger.Debug("durability watermark",
			logpkg.Int64("up_to_offset", ack.UpToOffset),
			logpkg.Int64("dropped", d.dropped.Load()),
		)
	}
}
