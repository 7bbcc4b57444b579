package client

import (
	"sync"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

// invocationResult is the terminal outcome of one invocation.
type invocationResult struct {
	dataType protocol.DataType
	data     []byte
	err      error
}

// pendingInvocation tracks one in-flight request/response pair. The done
// channel is closed exactly once, by whichever path removed the entry from
// the table first.
type pendingInvocation struct {
	id     uint64
	done   chan struct{}
	result invocationResult
}

// complete records the outcome and wakes the waiter. Must only be called by
// the goroutine that removed the entry from the table.
func (p *pendingInvocation) complete(res invocationResult) {
	p.result = res
	close(p.done)
}

// invocationTable correlates invocation ids with their waiting callers.
// Ids are allocated sequentially per client; entries are removed exactly
// once, so a response and a timeout racing for the same id cannot both
// resolve it.
type invocationTable struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingInvocation
}

func newInvocationTable() *invocationTable {
	return &invocationTable{pending: make(map[uint64]*pendingInvocation)}
}

// register allocates the next invocation id and inserts a pending entry.
func (t *invocationTable) register() *pendingInvocation {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	p := &pendingInvocation{
		id:   t.nextID,
		done: make(chan struct{}),
	}
	t.pending[p.id] = p
	return p
}

// take removes and returns the pending entry for id. The second return is
// false when the id is unknown or already resolved; duplicate responses and
// response/timeout races land here and are dropped by the caller.
func (t *invocationTable) take(id uint64) (*pendingInvocation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return p, ok
}

// failAll removes every pending entry and completes each with a client-side
// cancellation carrying reason. Used when the session is lost or the client
// is closed.
func (t *invocationTable) failAll(reason string) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uint64]*pendingInvocation)
	t.mu.Unlock()

	for _, p := range pending {
		p.complete(invocationResult{err: newCancellationError(p.id, reason)})
	}
}

// size reports the number of in-flight invocations.
func (t *invocationTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
