package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/pack"
)

const modrinthDefaultBaseURL = "https://api.modrinth.com/v2"

// ModrinthClient talks to api.modrinth.com. No authentication is needed for
// the read-only endpoints used here.
type ModrinthClient struct {
	HTTP *http.Client

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

func NewModrinthClient(c *http.Client) *ModrinthClient {
	return &ModrinthClient{HTTP: c, BaseURL: modrinthDefaultBaseURL}
}

func (*ModrinthClient) Site() pack.Platform { return pack.Modrinth }

type modrinthProject struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ProjectType string `json:"project_type"`
	ClientSide  string `json:"client_side"`
	ServerSide  string `json:"server_side"`
}

type modrinthVersion struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	GameVersions  []string      `json:"game_versions"`
	Loaders       []string      `json:"loaders"`
	DatePublished string        `json:"date_published"`
	Files         []modrinthFile `json:"files"`
	Dependencies  []modrinthDep `json:"dependencies"`
}

type modrinthFile struct {
	Hashes   map[string]string `json:"hashes"`
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	Primary  bool              `json:"primary"`
	Size     int64             `json:"size"`
}

type modrinthDep struct {
	VersionID      *string `json:"version_id"`
	ProjectID      *string `json:"project_id"`
	DependencyType string  `json:"dependency_type"`
}

func (c *ModrinthClient) get(ctx context.Context, path string, v interface{}) error {
	return getJSON(ctx, c.HTTP, pack.Modrinth, c.BaseURL+path, nil, v)
}

func (c *ModrinthClient) Project(ctx context.Context, key pack.ProjectKey) (*ProjectRecord, error) {
	if key.Site != pack.Modrinth {
		return nil, ErrWrongSite
	}
	var p modrinthProject
	err := c.get(ctx, "/project/"+url.PathEscape(key.ID), &p)
	if err != nil {
		return nil, modrinthNotFound(err, "project "+key.ID)
	}
	if p.ProjectType != "mod" {
		return nil, fmt.Errorf("modrinth: project %s exists but is a %s, not a mod", key.ID, p.ProjectType)
	}
	return &ProjectRecord{
		Key:   key,
		Name:  p.Title,
		Sides: modrinthSides(p.ClientSide, p.ServerSide),
		// Modrinth terms allow redistribution of hosted files.
		DistributionAllowed: true,
	}, nil
}

func (c *ModrinthClient) Version(ctx context.Context, id pack.ModID) (*VersionRecord, error) {
	mid, ok := id.(pack.ModrinthID)
	if !ok {
		return nil, ErrWrongSite
	}

	var v modrinthVersion
	err := c.get(ctx, "/version/"+url.PathEscape(mid.VersionID), &v)
	if err != nil {
		return nil, modrinthNotFound(err, fmt.Sprintf("version %s of project %s", mid.VersionID, mid.ProjectID))
	}
	if v.ProjectID != mid.ProjectID {
		return nil, fmt.Errorf("modrinth: version %s belongs to project %s, not %s", mid.VersionID, v.ProjectID, mid.ProjectID)
	}

	proj, err := c.Project(ctx, id.Project())
	if err != nil {
		return nil, err
	}
	return modrinthRecord(mid, proj, &v)
}

func modrinthRecord(id pack.ModrinthID, proj *ProjectRecord, v *modrinthVersion) (*VersionRecord, error) {
	f := primaryFile(v.Files)
	if f == nil {
		return nil, fmt.Errorf("modrinth: version %s has no files", id.VersionID)
	}

	rec := &VersionRecord{
		ID:                  id,
		Name:                proj.Name,
		Filename:            f.Filename,
		URL:                 f.URL,
		Size:                f.Size,
		Hashes:              f.Hashes,
		Sides:               proj.Sides,
		GameVersions:        v.GameVersions,
		DistributionAllowed: true,
	}
	for _, d := range v.Dependencies {
		if d.ProjectID == nil {
			// Rare: a dependency pinned to a version with no project
			// reference. Nothing to resolve against.
			log.Debug().Str("version", id.VersionID).Msg("modrinth dependency without project id, skipping")
			continue
		}
		rec.Dependencies = append(rec.Dependencies, Dependency{
			Project: pack.ModrinthProject(*d.ProjectID),
			Kind:    modrinthDepKind(d.DependencyType),
		})
	}
	return rec, nil
}

func primaryFile(files []modrinthFile) *modrinthFile {
	for i := range files {
		if files[i].Primary {
			return &files[i]
		}
	}
	if len(files) > 0 {
		return &files[0]
	}
	return nil
}

func modrinthDepKind(s string) DepKind {
	switch s {
	case "required":
		return DepRequired
	case "optional":
		return DepOptional
	case "incompatible":
		return DepIncompatible
	}
	return DepOther
}

// modrinthSides maps client_side/server_side strings onto the requirement
// lattice. "unknown" is treated as required so that a missing hint never
// drops a mod from an output.
func modrinthSides(client, server string) *pack.Sides {
	if client == "unknown" && server == "unknown" {
		return nil
	}
	s := pack.Sides{
		Client: modrinthSide(client),
		Server: modrinthSide(server),
	}
	return &s
}

func modrinthSide(s string) pack.SideRequirement {
	r, err := pack.ParseSideRequirement(s)
	if err != nil {
		return pack.Required
	}
	return r
}

func (c *ModrinthClient) LatestVersion(ctx context.Context, key pack.ProjectKey, game Game) (pack.ModID, error) {
	if key.Site != pack.Modrinth {
		return nil, ErrWrongSite
	}
	q := url.Values{}
	q.Set("game_versions", fmt.Sprintf("[%q]", game.Minecraft))
	q.Set("loaders", fmt.Sprintf("[%q]", string(game.Loader)))
	var versions []modrinthVersion
	err := c.get(ctx, "/project/"+url.PathEscape(key.ID)+"/version?"+q.Encode(), &versions)
	if err != nil {
		return nil, modrinthNotFound(err, "project "+key.ID)
	}
	// The endpoint sorts newest first.
	if len(versions) == 0 {
		return nil, &NotFoundError{
			Site: pack.Modrinth,
			Ref:  fmt.Sprintf("project %s has no version for %s %s", key.ID, game.Loader, game.Minecraft),
		}
	}
	return pack.ModrinthID{ProjectID: key.ID, VersionID: versions[0].ID}, nil
}

func modrinthNotFound(err error, ref string) error {
	var nf *errNotFound
	if errors.As(err, &nf) {
		return &NotFoundError{Site: pack.Modrinth, Ref: ref}
	}
	return err
}
