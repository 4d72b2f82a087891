// Package engine provides a key-partitioned task scheduler.
//
// Work items are submitted together with an affinity key. Items sharing a
// key run strictly one after another in submission order; items of
// different keys run concurrently on a fixed pool of workers. Keys with
// pending work are serviced round-robin: after running one item a worker
// moves its key to the tail of the rotation, so a busy key cannot starve
// the others.
//
//	e := engine.New("mail", 8)
//	defer e.Stop()
//
//	ok := e.Submit(accountID, func() {
//	    deliver(msg)
//	})
//	if !ok {
//	    // engine stopped, draining, or at capacity
//	}
//
// # Admission Control
//
// [NewBounded] creates an engine that refuses submissions once the number of
// admitted items not yet picked up by a worker reaches a ceiling. Submit
// never blocks; callers retry or drop on false.
//
// # Shutdown
//
// [Engine.Stop] halts immediately and abandons queued items.
// [Engine.StopWhenEmpty] refuses new items, waits for queued ones to finish
// and then stops. A [Registry] stops many engines at once.
//
// # Worker Failures
//
// A panicking item is logged and the worker continues. An item that calls
// runtime.Goexit, or panics with an error wrapping [ErrWorkerPoisoned],
// retires its worker; a replacement is started shortly after so the pool
// keeps its size. Panics wrapping [ErrFatal] are re-raised after logging.
//
// # Implicit Keys
//
// There is no goroutine identity to fall back on, so a nil key is refused.
// A [Session] provides a private key that keeps items submitted through it
// in order.
package engine
