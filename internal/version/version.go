// Package version holds build identity for the clinico binary.
package version

import "fmt"

const (
	// Name is the binary name.
	Name = "clinico"
	// Version is the semantic version, overridable at build time with -ldflags.
	Version = "0.1.0"
)

// String returns "clinico vX.Y.Z".
func String() string {
	return fmt.Sprintf("%s v%s", Name, Version)
}
