// Package platform binds the reminder engine to the host: systemd-logind sleep
// inhibitors (reservations), the PrepareForSleep wake signal, power-saving and
// exact-scheduling permission signals, sd_notify and the kernel boot id.
//
// Everything degrades to no-ops off Linux or without a system bus.
package platform
