// Package cdc implements the change data capture log (spec §4.5): a
// gap-free, monotonically increasing sequence of events recorded in the
// same atomic batch as the mutation that produced them, with long-poll
// reads that wake on a broadcast rather than a thread per waiter.
package cdc
