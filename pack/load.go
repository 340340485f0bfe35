package pack

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/packsmith/packsmith/pack/hclspec"
)

// ManifestName is the pack manifest file name within a source directory.
const ManifestName = "pack.hcl"

// LoadDir parses and validates the manifest of a pack source directory.
// Diagnostics are reported through the parser so callers can render them
// with source context.
func LoadDir(dir string, parser *hclparse.Parser) (*Config, hcl.Diagnostics) {
	fpath := filepath.Join(dir, ManifestName)
	src, err := os.ReadFile(fpath)
	if err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unreadable pack manifest",
			Detail:   err.Error(),
		}}
	}
	return Load(src, fpath, parser)
}

// Load parses manifest source bytes into a validated Config.
func Load(src []byte, filename string, parser *hclparse.Parser) (*Config, hcl.Diagnostics) {
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var m hclspec.Manifest
	diags = append(diags, gohcl.DecodeBody(file.Body, nil, &m)...)
	if diags.HasErrors() {
		return nil, diags
	}

	c, err := fromSpec(&m)
	if err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid pack manifest",
			Detail:   err.Error(),
			Subject:  file.Body.MissingItemRange().Ptr(),
		})
		return nil, diags
	}
	return c, diags
}

func fromSpec(m *hclspec.Manifest) (*Config, error) {
	loader, err := ParseLoader(m.Loader.ID)
	if err != nil {
		return nil, err
	}

	c := &Config{
		Name:        m.Name,
		Description: m.Description,
		Author:      m.Author,
		Version:     m.Version,
		Minecraft:   m.Minecraft,
		Loader: ModLoader{
			ID:      loader,
			Version: m.Loader.Version,
		},
	}

	seenKeys := make(map[string]bool, len(m.CurseMods)+len(m.ModrinthMods))
	addKey := func(key string) error {
		if key == "" {
			return fmt.Errorf("mod block with empty key")
		}
		if seenKeys[key] {
			return fmt.Errorf("duplicate mod key %q", key)
		}
		seenKeys[key] = true
		return nil
	}

	for _, cm := range m.CurseMods {
		if err := addKey(cm.Key); err != nil {
			return nil, err
		}
		ref := ModReference{
			Key: cm.Key,
			ID: CurseID{
				ProjectID: cm.ProjectID,
				FileID:    cm.FileID,
			},
		}
		if ref.ClientSide, err = sideOverride(cm.Key, "client", cm.Client); err != nil {
			return nil, err
		}
		if ref.ServerSide, err = sideOverride(cm.Key, "server", cm.Server); err != nil {
			return nil, err
		}
		if len(cm.IgnoredDeps) > 0 {
			ref.IgnoredDeps = make(map[ProjectKey]bool, len(cm.IgnoredDeps))
			for _, dep := range cm.IgnoredDeps {
				ref.IgnoredDeps[CurseProject(dep)] = true
			}
		}
		c.Mods = append(c.Mods, ref)
	}

	for _, mm := range m.ModrinthMods {
		if err := addKey(mm.Key); err != nil {
			return nil, err
		}
		ref := ModReference{
			Key: mm.Key,
			ID: ModrinthID{
				ProjectID: mm.ProjectID,
				VersionID: mm.VersionID,
			},
		}
		if ref.ClientSide, err = sideOverride(mm.Key, "client", mm.Client); err != nil {
			return nil, err
		}
		if ref.ServerSide, err = sideOverride(mm.Key, "server", mm.Server); err != nil {
			return nil, err
		}
		if len(mm.IgnoredDeps) > 0 {
			ref.IgnoredDeps = make(map[ProjectKey]bool, len(mm.IgnoredDeps))
			for _, dep := range mm.IgnoredDeps {
				ref.IgnoredDeps[ModrinthProject(dep)] = true
			}
		}
		c.Mods = append(c.Mods, ref)
	}

	sort.Slice(c.Mods, func(i, j int) bool { return c.Mods[i].Key < c.Mods[j].Key })

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func sideOverride(key, attr, val string) (*SideRequirement, error) {
	if val == "" {
		return nil, nil
	}
	r, err := ParseSideRequirement(val)
	if err != nil {
		return nil, fmt.Errorf("mod %q: attribute %q: %w", key, attr, err)
	}
	return &r, nil
}
