// This file contains the observable used to notify the readers of newly
// stored signatures.

package watcherdb

import (
	"context"
	"sync"
)

// observable keeps the list of the current observers and notifies them one
// after the other when a signature is stored.
type observable struct {
	sync.RWMutex

	observers map[*observer]struct{}
}

func newObservable() *observable {
	return &observable{
		observers: make(map[*observer]struct{}),
	}
}

func (w *observable) Add(obs *observer) {
	w.Lock()
	w.observers[obs] = struct{}{}
	w.Unlock()
}

func (w *observable) Remove(obs *observer) {
	w.Lock()
	delete(w.observers, obs)
	w.Unlock()
}

func (w *observable) Notify(rec SignatureRecord) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.observers {
		obs.notify(rec)
	}
}

// observer is a registration to the observable that feeds a channel. A slow
// reader does not block the store: when the buffer is full, new events are
// dropped.
type observer struct {
	ch chan SignatureRecord
}

const observerBufferSize = 100

// newObserver registers a new observer and removes it when the context is
// done, closing the channel.
func newObserver(ctx context.Context, w *observable) *observer {
	obs := &observer{
		ch: make(chan SignatureRecord, observerBufferSize),
	}

	w.Add(obs)

	go func() {
		<-ctx.Done()

		// Remove waits for any notification in progress, so the channel can
		// be closed safely afterwards.
		w.Remove(obs)
		close(obs.ch)
	}()

	return obs
}

func (o *observer) notify(rec SignatureRecord) {
	select {
	case o.ch <- rec:
	default:
	}
}
