// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

// handlerList is an ordered set of subscriptions. Removal is by the
// id handed out at registration, so unsubscribing twice is harmless.
type handlerList[F any] struct {
	nextID  int
	entries []handlerEntry[F]
}

type handlerEntry[F any] struct {
	id int
	fn F
}

func (l *handlerList[F]) add(fn F) func() {
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, handlerEntry[F]{id: id, fn: fn})
	return func() { l.remove(id) }
}

func (l *handlerList[F]) remove(id int) {
	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// snapshot returns the current handlers. Callers iterate the copy so
// that a handler may unsubscribe itself or others mid-dispatch.
func (l *handlerList[F]) snapshot() []F {
	handlers := make([]F, len(l.entries))
	for i, entry := range l.entries {
		handlers[i] = entry.fn
	}
	return handlers
}

func (l *handlerList[F]) clear() {
	l.entries = nil
}
