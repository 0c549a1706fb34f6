// Package config reads the engine's settings out of the config.toml
// file the secure-config layer resolves for a repo. Only the keys the
// engine itself consumes are decoded; everything else in the file is
// left for the languages that consume it (revsets, templates) and
// passed along as opaque strings.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// Config is the decoded settings tree.
type Config struct {
	Revsets  Revsets  `toml:"revsets"`
	UI       UI       `toml:"ui"`
	Snapshot Snapshot `toml:"snapshot"`
	Gerrit   Gerrit   `toml:"gerrit"`
}

// Revsets holds the revset expressions commands evaluate. The
// expressions themselves are opaque here; resolving them is the
// revset engine's business.
type Revsets struct {
	// Arrange selects the commits `arrange` edits when no -r flag is
	// given.
	Arrange string `toml:"arrange"`

	// BookmarkAdvanceTo resolves to the single commit bookmarks
	// advance to.
	BookmarkAdvanceTo string `toml:"bookmark-advance-to"`

	// BookmarkAdvanceFrom selects the commits whose bookmarks are
	// candidates for advancement. It may reference the resolved
	// target through the bound variable `to`.
	BookmarkAdvanceFrom string `toml:"bookmark-advance-from"`
}

// UI holds presentation settings.
type UI struct {
	// BookmarkListSortKeys is the default --sort for bookmark and tag
	// listings, e.g. ["committer-date-", "name"].
	BookmarkListSortKeys []string `toml:"bookmark-list-sort-keys"`

	// ConflictMarkerStyle selects how conflicted files are written to
	// the working copy: "git" or "snapshot".
	ConflictMarkerStyle string `toml:"conflict-marker-style"`
}

// Snapshot holds working-copy snapshot settings.
type Snapshot struct {
	// MaxNewFileSize bounds the size of files a snapshot will newly
	// track, as a byte count or a human-readable size ("10KB").
	// "0" means unlimited.
	MaxNewFileSize string `toml:"max-new-file-size"`

	// AutoTrack is the fileset of paths a snapshot tracks without
	// being asked. Opaque to the engine.
	AutoTrack string `toml:"auto-track"`
}

// Gerrit holds settings for `gerrit upload`.
type Gerrit struct {
	DefaultRemote       string `toml:"default-remote"`
	DefaultRemoteBranch string `toml:"default-remote-branch"`
	ReviewURL           string `toml:"review-url"`
}

// Default returns the settings used when a key is absent from the
// file, or when the repo has no config at all.
func Default() Config {
	return Config{
		Revsets: Revsets{
			Arrange:             "reachable(@, mutable())",
			BookmarkAdvanceTo:   "@",
			BookmarkAdvanceFrom: "heads(::to & bookmarks())",
		},
		UI: UI{
			BookmarkListSortKeys: []string{"name"},
			ConflictMarkerStyle:  "snapshot",
		},
		Snapshot: Snapshot{
			MaxNewFileSize: "0",
			AutoTrack:      "all()",
		},
		Gerrit: Gerrit{
			DefaultRemote:       "origin",
			DefaultRemoteBranch: "main",
		},
	}
}

// Load decodes path over [Default]: keys present in the file win,
// absent keys keep their defaults. A missing file returns Default()
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// MaxNewFileSizeBytes parses the snapshot.max-new-file-size setting.
// A zero return means no limit.
func (c Config) MaxNewFileSizeBytes() (uint64, error) {
	s := c.Snapshot.MaxNewFileSize
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse snapshot.max-new-file-size %q: %w", s, err)
	}
	return n, nil
}
