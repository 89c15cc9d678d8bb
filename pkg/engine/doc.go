// Package engine provides the core reconciliation primitives shared by all
// resource modules: target states, classified errors, the generic
// present/absent reconcile helper, and the poll/wait loop used for
// asynchronous provider actions.
//
// The engine is deliberately small. A module invocation is a single
// synchronous pass: look up the current resource state, compare it with the
// declared target state, issue the mutating calls needed to close the gap,
// and optionally poll until the provider reports a terminal status. There is
// no scheduler, no local resource state, and no automatic retry; every error
// is terminal for the invocation that produced it.
package engine
