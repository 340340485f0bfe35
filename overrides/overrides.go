// Package overrides loads the override trees of a pack source directory and
// merges them per target side. Trees are plain directories; the merge is a
// pure path overlay, file contents are never inspected.
package overrides

import (
	"errors"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/packsmith/packsmith/pack"
)

const (
	CommonDir = "overrides"
	ClientDir = "client-overrides"
	ServerDir = "server-overrides"

	// ModsDir is the reserved subpath for raw mod files shipped directly
	// in a tree rather than resolved from a platform.
	ModsDir = "mods"
)

// Set holds the three override trees of one source directory. A tree is nil
// when its directory does not exist.
type Set struct {
	Common billy.Filesystem
	Client billy.Filesystem
	Server billy.Filesystem
}

// Load opens the override trees beneath the given source filesystem.
func Load(source billy.Filesystem) (*Set, error) {
	s := &Set{}
	for _, t := range []struct {
		dir  string
		dest *billy.Filesystem
	}{
		{CommonDir, &s.Common},
		{ClientDir, &s.Client},
		{ServerDir, &s.Server},
	} {
		fi, err := source.Stat(t.dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			continue
		}
		fs, err := source.Chroot(t.dir)
		if err != nil {
			return nil, err
		}
		*t.dest = fs
	}
	return s, nil
}

// Entry is one merged file: its slash-separated path relative to the tree
// root, and the filesystem that won the overlay for it.
type Entry struct {
	Path string
	FS   billy.Filesystem
}

// Open opens the entry's file.
func (e Entry) Open() (billy.File, error) {
	return e.FS.Open(e.Path)
}

func (s *Set) layers(side pack.Side) []billy.Filesystem {
	layers := []billy.Filesystem{s.Common}
	switch side {
	case pack.ClientSide:
		layers = append(layers, s.Client)
	case pack.ServerSide:
		layers = append(layers, s.Server)
	}
	return layers
}

// Tree lists all files of one tree, sorted by path.
func Tree(fs billy.Filesystem) ([]Entry, error) {
	var out []Entry
	err := util.Walk(fs, "/", func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel := path.Clean(strings.TrimPrefix(p, "/"))
		out = append(out, Entry{Path: rel, FS: fs})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Merged overlays the side tree over the common tree. Later layers win path
// conflicts; the result is sorted by path.
func (s *Set) Merged(side pack.Side) ([]Entry, error) {
	byPath := make(map[string]Entry)
	for _, fs := range s.layers(side) {
		if fs == nil {
			continue
		}
		entries, err := Tree(fs)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			byPath[e.Path] = e
		}
	}
	out := make([]Entry, 0, len(byPath))
	for _, e := range byPath {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// RawMods lists the merged entries under the reserved mods/ subpath. These
// are shipped as-is and never deduplicated against resolved mods.
func (s *Set) RawMods(side pack.Side) ([]Entry, error) {
	merged, err := s.Merged(side)
	if err != nil {
		return nil, err
	}
	var mods []Entry
	for _, e := range merged {
		if strings.HasPrefix(e.Path, ModsDir+"/") {
			mods = append(mods, e)
		}
	}
	return mods, nil
}
