// Package profile reads and writes the user profile documents that
// decorate session participants.
package profile
