// Package jsonspec mirrors the CurseForge modpack manifest wire format.
package jsonspec

type Manifest struct {
	ManifestType    string `json:"manifestType"`
	ManifestVersion int    `json:"manifestVersion"`

	Minecraft MinecraftInstance `json:"minecraft"`

	Name    string `json:"name"`
	Version string `json:"version"`
	Author  string `json:"author"`
	Desc    string `json:"description,omitempty"`

	Files     []File `json:"files"`
	Overrides string `json:"overrides"`
}

type MinecraftInstance struct {
	Version    string      `json:"version"`
	ModLoaders []ModLoader `json:"modLoaders"`
}

type ModLoader struct {
	// ID is "<loader>-<version>", e.g. "neoforge-21.1.72".
	ID      string `json:"id"`
	Primary bool   `json:"primary"`
}

type File struct {
	ProjectID int32 `json:"projectID"`
	FileID    int32 `json:"fileID"`
	Required  bool  `json:"required"`
}
