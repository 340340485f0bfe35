package pack

import (
	"fmt"
	"strconv"
)

// Platform is a mod hosting platform tag.
type Platform string

const (
	CurseForge Platform = "curseforge"
	Modrinth   Platform = "modrinth"
)

// ModID identifies one uploaded file of one project on a mod hosting
// platform. The platforms use incompatible identifier schemes (numeric pairs
// on CurseForge, opaque strings on Modrinth), so the concrete types are
// sealed and an identifier never loses its platform tag.
type ModID interface {
	Site() Platform
	Project() ProjectKey
	String() string

	sealed()
}

// ProjectKey identifies a project on a platform irrespective of version.
// It is the key for dependency resolution: two mod files of the same project
// share one ProjectKey.
type ProjectKey struct {
	Site Platform
	ID   string
}

func (k ProjectKey) String() string {
	return string(k.Site) + ":" + k.ID
}

func CurseProject(projectID int32) ProjectKey {
	return ProjectKey{CurseForge, strconv.FormatInt(int64(projectID), 10)}
}

func ModrinthProject(projectID string) ProjectKey {
	return ProjectKey{Modrinth, projectID}
}

type CurseID struct {
	ProjectID int32
	FileID    int32
}

func (CurseID) sealed() {}

func (CurseID) Site() Platform { return CurseForge }

func (id CurseID) Project() ProjectKey {
	return CurseProject(id.ProjectID)
}

func (id CurseID) String() string {
	return fmt.Sprintf("curseforge:%d/%d", id.ProjectID, id.FileID)
}

type ModrinthID struct {
	ProjectID string
	VersionID string
}

func (ModrinthID) sealed() {}

func (ModrinthID) Site() Platform { return Modrinth }

func (id ModrinthID) Project() ProjectKey {
	return ModrinthProject(id.ProjectID)
}

func (id ModrinthID) String() string {
	return fmt.Sprintf("modrinth:%s/%s", id.ProjectID, id.VersionID)
}
