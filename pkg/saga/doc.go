// Package saga implements the SAGA coordinator (spec §4.7): an ordered
// list of forward steps with idempotent compensations, run in reverse on
// failure, each isolated so one compensation failure never blocks the
// rest.
package saga
