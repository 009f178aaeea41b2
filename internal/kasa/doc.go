// Package kasa is a minimal client for TP-Link Kasa smart plugs on the local network.
//
// It speaks the legacy local protocol: JSON commands over TCP port 9999, each
// frame prefixed with a big-endian length and obfuscated with the XOR autokey
// cipher. Only what a power switch needs is implemented: the get_sysinfo query
// and set_relay_state.
//
// A Device is a single TCP session bound to one host. Its state snapshot is
// empty until Update succeeds.
package kasa
