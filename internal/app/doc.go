// Package app wires application dependencies for the CLI.
//
// Load reads Config from the environment (and an optional .env file).
// NewWire turns it into the concrete document store, key store, services
// and subscription manager, exposed through the Wire struct for commands
// to use.
package app
