// Package world owns the authoritative entity state shared by all
// connected clients.
//
// A World is a single-writer actor: every mutation (Join, Update, Leave)
// is an immutable command value pushed onto one bounded mailbox and
// drained by exactly one Run loop. Producers from any goroutine are
// serialized by mailbox arrival order, which is the total order of
// mutations. There are no locks on world state; mutual exclusion is
// structural.
//
// After each mutation the loop encodes a snapshot of the post-mutation
// state and fans it out to every registered Handle before touching the
// next command, so no client can observe snapshots out of order relative
// to the mutation sequence. Delivery is fire-and-forget: a failing
// recipient is logged and counted, never retried, and never blocks the
// remaining recipients or rolls back the mutation.
//
// The registry of Handles is a weak back-reference. It never owns a
// connection's lifecycle; sessions remove themselves by synthesizing a
// Leave on teardown.
package world
