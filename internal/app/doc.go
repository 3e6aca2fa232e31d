// Package app wires application dependencies for the authmsg binaries.
//
// Config is loaded from YAML on top of DefaultConfig, then AUTHMSG_*
// environment overrides, then command-line flags. NewWire turns a validated
// Config into the dependency graph (logger, authority client or embedded
// development authority, key cache, redemption ledger, services) and New
// adds the messaging workflow on top.
package app
