// Package update checks the engine version against the minimum the CLI accepts.
package update

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/prisma-engines-go/engine/command"
)

// Status is the result of CheckEngineVersion.
type Status struct {
	Current string
	Minimum string
	// Outdated is true when Current is older than Minimum.
	Outdated bool
}

// CheckEngineVersion compares the version reported by the engine with min.
// An empty min always passes. Engine versions are often suffixed with a commit
// or channel ("5.22.0-44.abc"), which go-version reads as a prerelease.
func CheckEngineVersion(v command.VersionInfo, min string) (Status, error) {
	s := Status{Current: v.Version, Minimum: min}
	if min == "" {
		return s, nil
	}

	current, err := version.NewVersion(strings.TrimPrefix(v.Version, "v"))
	if err != nil {
		return s, fmt.Errorf("invalid engine version %q: %w", v.Version, err)
	}
	minimum, err := version.NewVersion(strings.TrimPrefix(min, "v"))
	if err != nil {
		return s, fmt.Errorf("invalid minimum engine version %q: %w", min, err)
	}

	s.Outdated = current.Core().LessThan(minimum.Core())
	return s, nil
}
