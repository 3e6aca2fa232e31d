// Package commands defines the authmsg CLI.
//
// Commands
//
//   - demo     Bind, verify both users, bootstrap identities and exchange a message
//   - bind     Bind the application and print the credential's endpoint and lifetime
//   - verify   Bind, then request verification for one user
//   - version  Print the build version
//
// # Implementation
//
// The root command loads configuration (YAML file, AUTHMSG_* environment,
// then flags) before any subcommand runs. Each subcommand builds its own
// dependency graph through internal/app so that nothing is shared between
// invocations. Errors map to process exit codes in exitcodes.go.
package commands
