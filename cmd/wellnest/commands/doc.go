// Package commands defines the wellnest CLI and wires dependencies for subcommands.
//
// Commands
//
//   - session      Create (or look up) the direct session with a peer
//   - group        Create a group session
//   - send         Encrypt and send a message
//   - attach       Encrypt and send a file
//   - listen       Stream a session's messages as they arrive
//   - read         Mark a message as read
//   - typing       Set the typing indicator
//   - fingerprint  Print the session key fingerprint
//   - handshake    Negotiate a forward-secret key with a peer
//   - health       Check the backing store
//
// # Implementation
//
// The root command loads configuration from the environment, applies flag
// overrides and builds the dependency graph (store, key store, services,
// subscription manager) before any subcommand runs. Commands that take a
// <peer> also accept a group session id.
package commands
