// Package power implements the plug-power command dispatcher.
//
// Every invocation opens exactly one session with the plug, refreshes its
// state and runs one command: status, on, off or cycle. Output goes to the
// configured writer; failures are returned to the caller untouched so the CLI
// can print them and exit non-zero.
package power
