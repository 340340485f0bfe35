package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/packsmith/packsmith/pack"
)

// MissingDependencyError reports a required dependency that could not be
// resolved on its platform. Requesters are the config keys (or canonical
// project keys) of the mods that declared the edge.
type MissingDependencyError struct {
	Requesters []string
	Project    pack.ProjectKey
	Name       string
	Err        error
}

func (e *MissingDependencyError) Error() string {
	name := e.Name
	if name == "" {
		name = e.Project.String()
	} else {
		name = fmt.Sprintf("%s (%s)", name, e.Project)
	}
	return fmt.Sprintf("required dependency %s of %s cannot be resolved: %v",
		name, strings.Join(e.Requesters, ", "), e.Err)
}

func (e *MissingDependencyError) Unwrap() error { return e.Err }

// IncompatibilityError reports a declared incompatibility between two mods
// that both ended up in the final set.
type IncompatibilityError struct {
	Key      string
	OtherKey string
}

func (e *IncompatibilityError) Error() string {
	return fmt.Sprintf("declares incompatibility with %s, which is also part of the pack", e.OtherKey)
}

// DistributionError reports a CurseForge mod whose author opted out of
// third-party distribution.
type DistributionError struct{}

func (*DistributionError) Error() string {
	return "the mod does not allow third-party distribution; ship its file under overrides/mods/ instead"
}

// GameVersionError reports a mod file that does not support the pack's game
// version.
type GameVersionError struct {
	Expected string
	Actual   []string
}

func (e *GameVersionError) Error() string {
	return fmt.Sprintf("file does not support minecraft %s (supports %s)", e.Expected, strings.Join(e.Actual, ", "))
}

// Error aggregates all per-mod resolution failures of a run, keyed and
// sorted by config key so repeated runs report identically.
type Error struct {
	Failures map[string]error
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "mod %s: %v\n", k, e.Failures[k])
	}
	return strings.TrimSuffix(b.String(), "\n")
}
