// Package jsonspec mirrors the modrinth.index.json wire format.
package jsonspec

type Index struct {
	FormatVersion int    `json:"formatVersion"`
	Game          string `json:"game"`

	VersionID string `json:"versionId"`
	Name      string `json:"name"`
	Summary   string `json:"summary,omitempty"`

	Files []File `json:"files"`

	// Dependencies maps "minecraft" and the loader key ("forge",
	// "neoforge", "fabric-loader", "quilt-loader") to versions.
	Dependencies map[string]string `json:"dependencies"`
}

type File struct {
	Path   string            `json:"path"`
	Hashes map[string]string `json:"hashes"`
	Env    *Env              `json:"env,omitempty"`

	Downloads []string `json:"downloads"`
	FileSize  int64    `json:"fileSize"`
}

type Env struct {
	Client string `json:"client"`
	Server string `json:"server"`
}
