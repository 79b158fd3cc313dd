// Package embedded provides files compiled into the binary.
package embedded

import _ "embed"

//go:embed config.example.yaml
var starterConfig []byte

// StarterConfig returns the example configuration written by the init command.
func StarterConfig() []byte {
	return starterConfig
}
