// Package scheduler repeats pipeline runs on a fixed interval.
//
// The first run starts immediately; later runs follow a wall-clock ticker.
// At most one run is active at a time: a tick or manual trigger that
// arrives while a run is in flight waits for it instead of overlapping.
// Ticks missed during a long run are dropped, not queued.
//
// Failed runs never stop the schedule. Consecutive failures are counted and
// logged, and the next attempt happens at the next regular tick.
package scheduler
