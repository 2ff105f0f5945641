package mqtt

import "time"

// outbound is a serialized message waiting to be written to the broker.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	queued   time.Time
}

// backlog holds messages published while the broker is unreachable. When it
// is full the oldest message is overwritten. The caller synchronizes.
type backlog struct {
	msgs    []outbound
	limit   int
	start   int // index of the oldest message
	n       int
	dropped int // overwritten since the last take
}

func newBacklog(limit int) *backlog {
	return &backlog{msgs: make([]outbound, limit), limit: limit}
}

// add queues m. It reports true only for the first overwrite after a take,
// so the caller can log once per outage.
func (b *backlog) add(m outbound) bool {
	if b.n < b.limit {
		b.msgs[(b.start+b.n)%b.limit] = m
		b.n++
		return false
	}
	b.msgs[b.start] = m
	b.start = (b.start + 1) % b.limit
	b.dropped++
	return b.dropped == 1
}

// take returns the queued messages oldest first and empties the backlog.
func (b *backlog) take() []outbound {
	if b.n == 0 {
		return nil
	}
	out := make([]outbound, 0, b.n)
	for i := 0; i < b.n; i++ {
		out = append(out, b.msgs[(b.start+i)%b.limit])
	}
	b.start, b.n, b.dropped = 0, 0, 0
	return out
}

func (b *backlog) size() int {
	return b.n
}
