package reconcile

import "sync"

// mailbox is an unbounded FIFO of engine messages. Producers never block.
type mailbox struct {
	mu     sync.Mutex
	items  []message
	closed bool
	wake   chan struct{}
}

type message struct {
	name string
	fn   func()
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

// push appends a message. It returns false once the mailbox was closed.
func (m *mailbox) push(msg message) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest message.
func (m *mailbox) pop() (message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return message{}, false
	}
	msg := m.items[0]
	m.items[0] = message{}
	m.items = m.items[1:]
	return msg, true
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()
}

func (m *mailbox) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
