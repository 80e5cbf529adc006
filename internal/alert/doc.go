// Package alert implements reminder.AlertSink for the host: structured log
// lines, local sound/vibration commands and a Telegram chat that carries one
// alert message per firing plus a single status message edited in place.
//
// Sinks are best effort. Multi fans out to every sink and joins the errors so
// the engine can fall back to the default alert profile.
package alert
