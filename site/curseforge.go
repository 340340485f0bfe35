package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/packsmith/packsmith/pack"
)

const curseDefaultBaseURL = "https://api.curseforge.com/v1"

// Relation types of the CurseForge files API.
const (
	curseRelationOptional     = 2
	curseRelationRequired     = 3
	curseRelationIncompatible = 5
)

// CurseClient talks to api.curseforge.com. All endpoints require an API key
// from the per-user configuration.
type CurseClient struct {
	HTTP   *http.Client
	APIKey string

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

func NewCurseClient(c *http.Client, apiKey string) *CurseClient {
	return &CurseClient{HTTP: c, APIKey: apiKey, BaseURL: curseDefaultBaseURL}
}

func (*CurseClient) Site() pack.Platform { return pack.CurseForge }

type curseModData struct {
	Data curseMod `json:"data"`
}

type curseMod struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`

	// AllowModDistribution is null for most projects; null means allowed.
	AllowModDistribution *bool `json:"allowModDistribution"`
}

type curseFileData struct {
	Data curseFile `json:"data"`
}

type curseFilesData struct {
	Data []curseFile `json:"data"`
}

type curseFile struct {
	ID           int32       `json:"id"`
	ModID        int32       `json:"modId"`
	FileName     string      `json:"fileName"`
	DownloadURL  string      `json:"downloadUrl"`
	FileLength   int64       `json:"fileLength"`
	Hashes       []curseHash `json:"hashes"`
	GameVersions []string    `json:"gameVersions"`
	Dependencies []curseDep  `json:"dependencies"`
}

type curseHash struct {
	Value string `json:"value"`
	Algo  int    `json:"algo"` // 1 sha1, 2 md5
}

type curseDep struct {
	ModID        int32 `json:"modId"`
	RelationType int   `json:"relationType"`
}

func (c *CurseClient) get(ctx context.Context, path string, v interface{}) error {
	if c.APIKey == "" {
		return fmt.Errorf("curseforge: no API key configured (set curseforge_api_key in the global config)")
	}
	header := http.Header{"X-Api-Key": []string{c.APIKey}}
	return getJSON(ctx, c.HTTP, pack.CurseForge, c.BaseURL+path, header, v)
}

func curseProjectID(key pack.ProjectKey) (int32, error) {
	if key.Site != pack.CurseForge {
		return 0, ErrWrongSite
	}
	id, err := strconv.ParseInt(key.ID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("curseforge: bad project id %q: %w", key.ID, err)
	}
	return int32(id), nil
}

func (c *CurseClient) Project(ctx context.Context, key pack.ProjectKey) (*ProjectRecord, error) {
	projectID, err := curseProjectID(key)
	if err != nil {
		return nil, err
	}
	var md curseModData
	err = c.get(ctx, fmt.Sprintf("/mods/%d", projectID), &md)
	if err != nil {
		return nil, curseNotFound(err, fmt.Sprintf("project %d", projectID))
	}
	return &ProjectRecord{
		Key:  key,
		Name: md.Data.Name,
		// CurseForge records no side metadata.
		Sides:               nil,
		DistributionAllowed: md.Data.AllowModDistribution == nil || *md.Data.AllowModDistribution,
	}, nil
}

func (c *CurseClient) Version(ctx context.Context, id pack.ModID) (*VersionRecord, error) {
	cid, ok := id.(pack.CurseID)
	if !ok {
		return nil, ErrWrongSite
	}

	proj, err := c.Project(ctx, id.Project())
	if err != nil {
		return nil, err
	}

	var fd curseFileData
	err = c.get(ctx, fmt.Sprintf("/mods/%d/files/%d", cid.ProjectID, cid.FileID), &fd)
	if err != nil {
		return nil, curseNotFound(err, fmt.Sprintf("file %d of project %d", cid.FileID, cid.ProjectID))
	}

	return curseRecord(cid, proj, &fd.Data), nil
}

func curseRecord(id pack.CurseID, proj *ProjectRecord, f *curseFile) *VersionRecord {
	rec := &VersionRecord{
		ID:                  id,
		Name:                proj.Name,
		Filename:            f.FileName,
		URL:                 f.DownloadURL,
		Size:                f.FileLength,
		GameVersions:        f.GameVersions,
		DistributionAllowed: proj.DistributionAllowed,
	}
	if len(f.Hashes) > 0 {
		rec.Hashes = make(map[string]string, len(f.Hashes))
		for _, h := range f.Hashes {
			switch h.Algo {
			case 1:
				rec.Hashes["sha1"] = h.Value
			case 2:
				rec.Hashes["md5"] = h.Value
			}
		}
	}
	for _, d := range f.Dependencies {
		rec.Dependencies = append(rec.Dependencies, Dependency{
			Project: pack.CurseProject(d.ModID),
			Kind:    curseDepKind(d.RelationType),
		})
	}
	return rec
}

func curseDepKind(relation int) DepKind {
	switch relation {
	case curseRelationRequired:
		return DepRequired
	case curseRelationOptional:
		return DepOptional
	case curseRelationIncompatible:
		return DepIncompatible
	}
	return DepOther
}

func (c *CurseClient) LatestVersion(ctx context.Context, key pack.ProjectKey, game Game) (pack.ModID, error) {
	projectID, err := curseProjectID(key)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("gameVersion", game.Minecraft)
	q.Set("pageSize", "50")
	var fd curseFilesData
	err = c.get(ctx, fmt.Sprintf("/mods/%d/files?%s", projectID, q.Encode()), &fd)
	if err != nil {
		return nil, curseNotFound(err, fmt.Sprintf("project %d", projectID))
	}

	// CurseForge mixes loader names into gameVersions; file ids grow
	// monotonically, so the highest matching id is the newest file.
	loaderTag := curseLoaderTag(game.Loader)
	var best *curseFile
	for i := range fd.Data {
		f := &fd.Data[i]
		if !containsTag(f.GameVersions, loaderTag) {
			continue
		}
		if best == nil || f.ID > best.ID {
			best = f
		}
	}
	if best == nil {
		return nil, &NotFoundError{
			Site: pack.CurseForge,
			Ref:  fmt.Sprintf("project %d has no file for %s %s", projectID, game.Loader, game.Minecraft),
		}
	}
	return pack.CurseID{ProjectID: projectID, FileID: best.ID}, nil
}

func curseLoaderTag(l pack.Loader) string {
	switch l {
	case pack.LoaderForge:
		return "Forge"
	case pack.LoaderNeoforge:
		return "NeoForge"
	case pack.LoaderFabric:
		return "Fabric"
	case pack.LoaderQuilt:
		return "Quilt"
	}
	return string(l)
}

func containsTag(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func curseNotFound(err error, ref string) error {
	var nf *errNotFound
	if errors.As(err, &nf) {
		return &NotFoundError{Site: pack.CurseForge, Ref: ref}
	}
	return err
}
