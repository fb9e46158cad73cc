// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

// eventQueue is an unbounded FIFO in front of a transport's Events
// channel. Producers (link read loops, Dial, Send on the in-memory
// transport) never block, so a consumer that sends while handling an
// event cannot deadlock against its own transport.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool

	wake chan struct{}
	out  chan Event
	done chan struct{}
	once sync.Once
}

func newEventQueue() *eventQueue {
	queue := &eventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	go queue.pump()
	return queue
}

// push appends event. Events pushed after close are discarded.
func (q *eventQueue) push(event Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, event)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) channel() <-chan Event { return q.out }

// close stops delivery and closes the output channel once the pump
// has exited. Undelivered events are discarded.
func (q *eventQueue) close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.pending = nil
		q.mu.Unlock()
		close(q.done)
	})
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, event := range batch {
			select {
			case q.out <- event:
			case <-q.done:
				return
			}
		}

		select {
		case <-q.wake:
		case <-q.done:
			return
		}
	}
}
