// Package hclspec holds the HCL schema for pack.hcl manifests.
package hclspec

type Manifest struct {
	Name        string `hcl:"name"`
	Description string `hcl:"description,optional"`
	Author      string `hcl:"author"`
	Version     string `hcl:"version"`
	Minecraft   string `hcl:"minecraft"`

	Loader Loader `hcl:"loader,block"`

	CurseMods    []CurseMod    `hcl:"curseforge,block"`
	ModrinthMods []ModrinthMod `hcl:"modrinth,block"`
}

type Loader struct {
	ID      string `hcl:"id"`
	Version string `hcl:"version"`
}

type CurseMod struct {
	Key         string  `hcl:"key,label"`
	ProjectID   int32   `hcl:"projectID"`
	FileID      int32   `hcl:"fileID"`
	Client      string  `hcl:"client,optional"`
	Server      string  `hcl:"server,optional"`
	IgnoredDeps []int32 `hcl:"ignoredDeps,optional"`
}

type ModrinthMod struct {
	Key         string   `hcl:"key,label"`
	ProjectID   string   `hcl:"projectID"`
	VersionID   string   `hcl:"versionID"`
	Client      string   `hcl:"client,optional"`
	Server      string   `hcl:"server,optional"`
	IgnoredDeps []string `hcl:"ignoredDeps,optional"`
}
