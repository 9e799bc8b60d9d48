// Package cli wires together the Cobra command tree for the redact binary.
//
// It defines the root command and its subcommands (run, verify, serve,
// rules, version), binds flags, builds the redaction engine and returns
// deterministic exit codes for scripting.
package cli
