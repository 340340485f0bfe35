// Package pack models a modpack source: pack metadata, the modloader choice
// and the configured mod references for both hosting platforms.
package pack

import (
	"errors"
	"fmt"
	"sort"
)

// Loader is a modloader identifier.
type Loader string

const (
	LoaderForge    Loader = "forge"
	LoaderNeoforge Loader = "neoforge"
	LoaderFabric   Loader = "fabric"
	LoaderQuilt    Loader = "quilt"
)

func ParseLoader(s string) (Loader, error) {
	switch l := Loader(s); l {
	case LoaderForge, LoaderNeoforge, LoaderFabric, LoaderQuilt:
		return l, nil
	}
	return "", fmt.Errorf("unknown modloader %q", s)
}

type ModLoader struct {
	ID      Loader
	Version string
}

// ModReference is one configured mod entry. It is built from the manifest
// once and not mutated afterwards.
type ModReference struct {
	// Key is the user-chosen name of the entry in pack.hcl.
	Key string

	ID ModID

	// ClientSide and ServerSide override the platform-reported side
	// requirement when non-nil. Platform metadata is authoritative
	// otherwise.
	ClientSide *SideRequirement
	ServerSide *SideRequirement

	// IgnoredDeps are dependency projects skipped during resolution for
	// edges declared by this mod only.
	IgnoredDeps map[ProjectKey]bool
}

// Ignores reports whether dependency edges from this mod to the given
// project are excluded from resolution.
func (m *ModReference) Ignores(k ProjectKey) bool {
	return m.IgnoredDeps[k]
}

// Sides derives the explicit side overrides of the entry, falling back to
// the given platform hint per side.
func (m *ModReference) Sides(hint Sides) Sides {
	s := hint
	if m.ClientSide != nil {
		s.Client = *m.ClientSide
	}
	if m.ServerSide != nil {
		s.Server = *m.ServerSide
	}
	return s
}

// Config is a loaded, validated pack.hcl.
type Config struct {
	Name        string
	Description string
	Author      string
	Version     string
	Minecraft   string
	Loader      ModLoader

	// Mods is sorted by key.
	Mods []ModReference
}

// Mod returns the reference with the given key, or nil.
func (c *Config) Mod(key string) *ModReference {
	i := sort.Search(len(c.Mods), func(i int) bool { return c.Mods[i].Key >= key })
	if i < len(c.Mods) && c.Mods[i].Key == key {
		return &c.Mods[i]
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	for _, f := range []struct{ name, val string }{
		{"name", c.Name},
		{"author", c.Author},
		{"version", c.Version},
		{"minecraft", c.Minecraft},
	} {
		if f.val == "" {
			errs = append(errs, fmt.Errorf("missing required attribute %q", f.name))
		}
	}
	if c.Loader.Version == "" {
		errs = append(errs, errors.New("loader block: missing version"))
	}

	seen := make(map[ProjectKey]string, len(c.Mods))
	for _, m := range c.Mods {
		k := m.ID.Project()
		if prev, ok := seen[k]; ok {
			errs = append(errs, fmt.Errorf("mods %q and %q reference the same project %s", prev, m.Key, k))
			continue
		}
		seen[k] = m.Key
	}
	return errors.Join(errs...)
}
