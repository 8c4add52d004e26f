package event

import (
	"errors"
	"sync"
	"time"

	"github.com/xraph/tally/id"
)

// ErrClosed is returned by Append once the log is closed.
var ErrClosed = errors.New("event: log closed")

// Log is an in-process, append-only event log. Sequence numbers start at 1
// and each record's hash commits to its predecessor.
type Log struct {
	mu      sync.RWMutex
	records []Record
	head    Hash
	closed  bool

	subMu      sync.Mutex
	subs       map[int]chan Record
	subsClosed bool
	nextSub    int
	dropped    uint64

	now func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		subs: make(map[int]chan Record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Append records e and returns the stored record. Subscribers receive the
// record without blocking the caller; a full subscriber buffer drops it.
func (l *Log) Append(e Event) (Record, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Record{}, ErrClosed
	}
	r := Record{
		Seq:        uint64(len(l.records)) + 1,
		ID:         id.NewEventID(),
		Kind:       e.Kind(),
		OccurredAt: l.now(),
		Payload:    e,
		PrevHash:   l.head,
	}
	h, err := r.computeHash()
	if err != nil {
		l.mu.Unlock()
		return Record{}, err
	}
	r.Hash = h
	l.records = append(l.records, r)
	l.head = h
	l.broadcast(r)
	l.mu.Unlock()

	return r, nil
}

// Since returns up to limit records with Seq > after, oldest first.
// A limit of zero or less returns everything.
func (l *Log) Since(after uint64, limit int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if after >= uint64(len(l.records)) {
		return nil
	}
	tail := l.records[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Record, len(tail))
	copy(out, tail)
	return out
}

// Len returns the number of records.
func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.records))
}

// Head returns the hash of the latest record, or the zero Hash when empty.
func (l *Log) Head() Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// Verify walks the whole chain.
func (l *Log) Verify() error {
	return VerifyChain(Hash{}, l.Since(0, 0))
}

// Subscribe returns a channel receiving every record appended from now on
// and a function that ends the subscription and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Record, buffer)

	l.subMu.Lock()
	if l.subsClosed {
		l.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	key := l.nextSub
	l.nextSub++
	l.subs[key] = ch
	l.subMu.Unlock()

	return ch, func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		if _, ok := l.subs[key]; ok {
			delete(l.subs, key)
			close(ch)
		}
	}
}

// Close stops further appends and closes every subscriber channel.
// Recorded history stays readable. Closing twice is a no-op.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subsClosed = true
	for key, ch := range l.subs {
		delete(l.subs, key)
		close(ch)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (l *Log) Dropped() uint64 {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	return l.dropped
}

func (l *Log) broadcast(r Record) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- r:
		default:
			l.dropped++
		}
	}
}
