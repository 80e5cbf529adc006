// Package reminder is the scheduling engine behind reminderd.
//
// One Engine owns a single reminder stream. It keeps the INACTIVE/ACTIVE/PAUSED
// state machine, persists configuration and runtime state through a
// storage.Store, arms the next deadline on a DeadlineTimer and runs a backup
// reconciler that catches deadlines the primary timer missed (typically after
// the machine was suspended).
//
// Every timer, reconciler and user event is tagged with the schedule epoch it
// was created under. Events whose epoch is no longer current are dropped, which
// is what keeps a racing primary timer and reconciler from alerting twice.
package reminder
