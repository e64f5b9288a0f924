package partition

import (
	"errors"
	"sync"
)

// ErrByteChannelFull is returned by Send when the receiver's queue has no
// room for the message.
var ErrByteChannelFull = errors.New("partition: byte channel send queue is full")

// ErrByteChannelEmpty is returned by Receive when there is no data
// waiting.
var ErrByteChannelEmpty = errors.New("partition: byte channel receive queue is empty")

// byteQueue is a single-direction bounded ring buffer of fixed-size
// messages, matching the original byte-channel's fixed message size and
// queue depth (both configured per channel from the device tree).
type byteQueue struct {
	mu       sync.Mutex
	msgs     [][]byte
	msgSize  int
	capacity int
}

func newByteQueue(capacity, msgSize int) *byteQueue {
	return &byteQueue{capacity: capacity, msgSize: msgSize}
}

// push returns wasEmpty (true if the queue had zero messages before this
// push, i.e. the consumer side should be told data is now available).
func (q *byteQueue) push(data []byte) (wasEmpty bool, err error) {
	if len(data) > q.msgSize {
		return false, errors.New("partition: byte channel message exceeds configured message size")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) >= q.capacity {
		return false, ErrByteChannelFull
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	wasEmpty = len(q.msgs) == 0
	q.msgs = append(q.msgs, msg)
	return wasEmpty, nil
}

// pop returns freedSpace (true if the queue was at capacity before this
// pop, i.e. the producer side should be told space is now available).
func (q *byteQueue) pop() (msg []byte, freedSpace bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil, false, ErrByteChannelEmpty
	}
	wasFull := len(q.msgs) >= q.capacity
	msg = q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, wasFull, nil
}

func (q *byteQueue) hasData() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs) > 0
}

func (q *byteQueue) spaceAvailable() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs) < q.capacity
}

// ByteChannelEndpoint is one side of a bidirectional byte channel: it
// sends into the peer's inbound queue and receives from its own. Each
// partition holds one ByteChannelEndpoint per byte-channel handle; the two
// endpoints of a channel share the same pair of byteQueues, one per
// direction, matching the original byte_chan_t's two-handle-slot shape.
type ByteChannelEndpoint struct {
	outbound *byteQueue // this endpoint pushes here; the peer pops from it
	inbound  *byteQueue // this endpoint pops from here; the peer pushes to it

	mu         sync.Mutex
	dataAvail  func()
	spaceAvail func()

	crossNotify *ByteChannelEndpoint
}

// NewByteChannel creates both endpoints of a bidirectional byte channel
// with the given queue depth and message size, and wires their
// data_avail/space_avail notifications to each other.
func NewByteChannel(capacity, msgSize int) (a, b *ByteChannelEndpoint) {
	q1 := newByteQueue(capacity, msgSize)
	q2 := newByteQueue(capacity, msgSize)
	a = &ByteChannelEndpoint{outbound: q1, inbound: q2}
	b = &ByteChannelEndpoint{outbound: q2, inbound: q1}
	a.crossNotify = b
	b.crossNotify = a
	return a, b
}

// OnDataAvailable registers the callback invoked (outside any lock) when the
// peer's Send puts a message into this endpoint's empty inbound queue, so
// there is now data for this endpoint to Receive.
// Typically wired to raise a VPIC virtual interrupt for the peer's
// partition.
func (e *ByteChannelEndpoint) OnDataAvailable(f func()) {
	e.mu.Lock()
	e.dataAvail = f
	e.mu.Unlock()
}

// OnSpaceAvailable registers the callback invoked when the peer's Receive
// takes a message from the full queue this endpoint sends into, freeing
// room for a Send from this endpoint that failed with ErrByteChannelFull to
// retry.
func (e *ByteChannelEndpoint) OnSpaceAvailable(f func()) {
	e.mu.Lock()
	e.spaceAvail = f
	e.mu.Unlock()
}

func (e *ByteChannelEndpoint) notify(cb func()) {
	if cb != nil {
		cb()
	}
}

// Send enqueues data for the peer. It does not block: a full queue returns
// ErrByteChannelFull immediately, matching the hypercall ABI's
// non-blocking send (a guest polls or waits for a VPIC event rather than
// the hypervisor blocking a vCPU on another partition's queue depth).
func (e *ByteChannelEndpoint) Send(data []byte) error {
	wasEmpty, err := e.outbound.push(data)
	if err != nil {
		return err
	}
	if wasEmpty && e.crossNotify != nil {
		e.crossNotify.mu.Lock()
		cb := e.crossNotify.dataAvail
		e.crossNotify.mu.Unlock()
		e.notify(cb)
	}
	return nil
}

// Receive dequeues the next message into buf, returning the number of
// bytes written. ErrByteChannelEmpty if nothing is waiting. If this
// drained the inbound queue from full, the peer's space_avail callback
// fires.
func (e *ByteChannelEndpoint) Receive(buf []byte) (int, error) {
	msg, freedSpace, err := e.inbound.pop()
	if err != nil {
		return 0, err
	}
	n := copy(buf, msg)
	if freedSpace && e.crossNotify != nil {
		e.crossNotify.mu.Lock()
		cb := e.crossNotify.spaceAvail
		e.crossNotify.mu.Unlock()
		e.notify(cb)
	}
	return n, nil
}

// Poll reports whether a Receive would currently succeed and whether a
// Send would currently succeed, for the non-blocking poll hypercall.
func (e *ByteChannelEndpoint) Poll() (canReceive, canSend bool) {
	return e.inbound.hasData(), e.outbound.spaceAvailable()
}
