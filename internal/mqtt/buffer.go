package mqtt

import "log"

// outbox is a fixed-capacity FIFO that stores messages while disconnected.
// When full, the oldest message is dropped; state topics are retained, so
// only the newest values matter on replay.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	buf      []Message
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages overwritten since last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		buf:      make([]Message, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg Message) {
	if o.count == o.capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.capacity)
		}
		o.dropped++
		// head already points at the oldest entry
		o.buf[o.head] = msg
		o.head = (o.head + 1) % o.capacity
		return
	}
	o.buf[o.head] = msg
	o.head = (o.head + 1) % o.capacity
	o.count++
}

// drain returns the buffered messages oldest first and empties the outbox.
func (o *outbox) drain() []Message {
	if o.count == 0 {
		return nil
	}

	out := make([]Message, o.count)
	start := (o.head - o.count + o.capacity) % o.capacity
	for i := range out {
		out[i] = o.buf[(start+i)%o.capacity]
	}

	if o.dropped > 0 {
		log.Printf("mqtt: replaying %d buffered messages (%d dropped while offline)", o.count, o.dropped)
	}
	o.count = 0
	o.head = 0
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
