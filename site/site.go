// Package site talks to the mod hosting platforms. Both clients normalize
// their native wire schemas into the same record shapes so the resolver and
// the exporters never branch on platform beyond the identifier tag.
package site

import (
	"context"
	"errors"
	"fmt"

	"github.com/packsmith/packsmith/pack"
)

// DepKind classifies a declared dependency edge.
type DepKind int

const (
	// DepOther covers embedded libraries, tools and other relations that
	// contribute nothing to resolution.
	DepOther DepKind = iota
	DepRequired
	DepOptional
	DepIncompatible
)

func (k DepKind) String() string {
	switch k {
	case DepRequired:
		return "required"
	case DepOptional:
		return "optional"
	case DepIncompatible:
		return "incompatible"
	}
	return "other"
}

// Dependency is one declared dependency of a mod file, at project
// granularity.
type Dependency struct {
	Project pack.ProjectKey
	Kind    DepKind
}

// Game narrows version lookups to a game version and modloader.
type Game struct {
	Minecraft string
	Loader    pack.Loader
}

// VersionRecord describes one mod file, normalized across platforms.
// The identifier is carried out of band by cache codecs, hence the json tag.
type VersionRecord struct {
	ID pack.ModID `json:"-"`

	// Name is the project display name, used in error messages.
	Name     string
	Filename string
	URL      string
	Size     int64

	// Hashes maps algorithm name (md5, sha1, sha512) to lowercase hex.
	Hashes map[string]string

	// Sides is the platform-reported side hint, nil when the platform
	// does not record one.
	Sides *pack.Sides

	// GameVersions lists supported game versions as reported.
	GameVersions []string

	// DistributionAllowed is false when the author opted out of
	// third-party distribution (CurseForge only).
	DistributionAllowed bool

	Dependencies []Dependency
}

// ProjectRecord describes a project irrespective of version.
type ProjectRecord struct {
	Key                 pack.ProjectKey
	Name                string
	Sides               *pack.Sides
	DistributionAllowed bool
}

// Client fetches metadata from one platform. Implementations are safe for
// concurrent use; the resolver bounds in-flight calls itself.
type Client interface {
	Site() pack.Platform

	// Version fetches the record for one mod file. The id must carry this
	// client's platform tag.
	Version(ctx context.Context, id pack.ModID) (*VersionRecord, error)

	// Project fetches project-level metadata.
	Project(ctx context.Context, key pack.ProjectKey) (*ProjectRecord, error)

	// LatestVersion picks the newest file of the project compatible with
	// the given game version and loader. Returns NotFoundError when no
	// file matches.
	LatestVersion(ctx context.Context, key pack.ProjectKey, game Game) (pack.ModID, error)
}

// Clients indexes the configured platform clients.
type Clients map[pack.Platform]Client

func (cs Clients) For(p pack.Platform) (Client, error) {
	c, ok := cs[p]
	if !ok {
		return nil, fmt.Errorf("no client configured for platform %q", p)
	}
	return c, nil
}

// NotFoundError reports that a project or version does not exist on its
// platform. It is never retried.
type NotFoundError struct {
	Site pack.Platform
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found", e.Site, e.Ref)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransientError reports a network failure that survived the retry budget.
type TransientError struct {
	Site pack.Platform
	URL  string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure for %s: %v", e.Site, e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ErrWrongSite reports a ModID handed to a client of another platform.
var ErrWrongSite = errors.New("mod identifier belongs to another platform")
