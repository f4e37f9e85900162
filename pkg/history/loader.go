// Package history reads the season CSV exports (player, team, Elo, fixture
// difficulty and per-gameweek statistics) kept under a data directory, one
// sub-directory per season ("2024-25", "2025-26", ...).
//
// Each file is read through the cache orchestrator. A cached table is
// revalidated by comparing the file's size and modification time, so an
// unchanged export is never parsed twice.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// File names inside a season directory.
const (
	FilePlayerStats       = "player_stats.csv"
	FileTeamStats         = "team_stats.csv"
	FileTeamElo           = "team_elo.csv"
	FileFixtureDifficulty = "fixture_difficulty.csv"
	FilePlayerGameweeks   = "player_gameweek_stats.csv"
)

// seasonPrefix marks season directories.
const seasonPrefix = "20"

// keyNamespace is the cache namespace of history tables.
const keyNamespace = "history"

// ErrInvalidSeason is returned for season names that are not a plain directory name.
var ErrInvalidSeason = errors.New("invalid season name")

// Loader reads season CSV files.
type Loader struct {
	fs     billy.Filesystem
	orch   *fetch.Orchestrator
	opts   []fetch.FetchOption
	logger zerolog.Logger
}

// NewLoader creates a loader for the data directory dataDir on local disk.
func NewLoader(dataDir string, orch *fetch.Orchestrator, opts ...fetch.FetchOption) *Loader {
	return NewLoaderFS(osfs.New(dataDir), orch, opts...)
}

// NewLoaderFS creates a loader over an arbitrary filesystem.
func NewLoaderFS(filesystem billy.Filesystem, orch *fetch.Orchestrator, opts ...fetch.FetchOption) *Loader {
	if filesystem == nil || orch == nil {
		panic("history: filesystem and orchestrator are required")
	}
	return &Loader{
		fs:     filesystem,
		orch:   orch,
		opts:   opts,
		logger: log.With().Str("component", "history").Logger(),
	}
}

// Seasons lists the season directories in ascending order. A missing data
// directory has no seasons.
func (l *Loader) Seasons() ([]string, error) {
	infos, err := l.fs.ReadDir(".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list data directory: %w", err)
	}

	seasons := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() && strings.HasPrefix(info.Name(), seasonPrefix) {
			seasons = append(seasons, info.Name())
		}
	}
	sort.Strings(seasons)
	return seasons, nil
}

// LatestSeason returns the last season in sort order, or "" when there is none.
func (l *Loader) LatestSeason() (string, error) {
	seasons, err := l.Seasons()
	if err != nil || len(seasons) == 0 {
		return "", err
	}
	return seasons[len(seasons)-1], nil
}

// PlayerStats returns player_stats.csv. An empty season means the latest.
func (l *Loader) PlayerStats(ctx context.Context, season string) (*Table, error) {
	return l.Table(ctx, season, FilePlayerStats)
}

// TeamStats returns team_stats.csv.
func (l *Loader) TeamStats(ctx context.Context, season string) (*Table, error) {
	return l.Table(ctx, season, FileTeamStats)
}

// EloRatings returns team_elo.csv.
func (l *Loader) EloRatings(ctx context.Context, season string) (*Table, error) {
	return l.Table(ctx, season, FileTeamElo)
}

// FixtureDifficulty returns fixture_difficulty.csv.
func (l *Loader) FixtureDifficulty(ctx context.Context, season string) (*Table, error) {
	return l.Table(ctx, season, FileFixtureDifficulty)
}

// GameweekStats returns player_gameweek_stats.csv, narrowed to one gameweek
// unless gameweek is zero.
func (l *Loader) GameweekStats(ctx context.Context, season string, gameweek int) (*Table, error) {
	t, err := l.Table(ctx, season, FilePlayerGameweeks)
	if err != nil || gameweek == 0 {
		return t, err
	}
	want := float64(gameweek)
	return t.where(func(r int) bool {
		v, ok := t.Float(r, "gameweek")
		return ok && v == want
	}), nil
}

// PlayerFormTrend returns a player's n most recent gameweek rows, newest first.
func (l *Loader) PlayerFormTrend(ctx context.Context, playerID, n int, season string) (*Table, error) {
	t, err := l.GameweekStats(ctx, season, 0)
	if err != nil {
		return nil, err
	}

	id := float64(playerID)
	rows := t.where(func(r int) bool {
		v, ok := t.Float(r, "player_id")
		return ok && v == id
	})

	gw := rows.Index("gameweek")
	gameweekOf := func(r int) float64 {
		if gw < 0 {
			return 0
		}
		v, _ := strconv.ParseFloat(strings.TrimSpace(rows.Rows[r][gw]), 64)
		return v
	}
	sort.SliceStable(rows.Rows, func(i, j int) bool {
		return gameweekOf(i) > gameweekOf(j)
	})

	if n >= 0 && len(rows.Rows) > n {
		rows.Rows = rows.Rows[:n]
	}
	return rows, nil
}

// Table reads one file of a season through the cache. Missing seasons and
// missing files yield an empty table.
func (l *Loader) Table(ctx context.Context, season, name string) (*Table, error) {
	if season == "" {
		latest, err := l.LatestSeason()
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return emptyTable(), nil
		}
		season = latest
	}
	if !validSegment(season) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
	}
	if !validSegment(name) {
		return nil, fmt.Errorf("%w: invalid file name %q", cache.ErrInvalidKeyInput, name)
	}

	key, err := cache.DeriveKey(keyNamespace, cache.P("season", season), cache.P("file", name))
	if err != nil {
		return nil, err
	}

	path := l.fs.Join(season, name)
	if _, err := l.fs.Stat(path); errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug().Str("season", season).Str("file", name).Msg("History file not found")
		if err := l.orch.Invalidate(ctx, key); err != nil {
			l.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to drop cached table")
		}
		return emptyTable(), nil
	}

	res, err := l.orch.Fetch(ctx, key, &fileLoader{fs: l.fs, path: path}, l.opts...)
	if err != nil {
		return nil, err
	}

	var t Table
	if err := json.Unmarshal(res.Payload, &t); err != nil {
		return nil, fmt.Errorf("decode cached table %s/%s: %w", season, name, err)
	}
	return &t, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// fileLoader loads one CSV file. Its fingerprint is size plus modification time.
type fileLoader struct {
	fs   billy.Filesystem
	path string
}

// FetchFull implements fetch.Loader.
func (f *fileLoader) FetchFull(context.Context) (fetch.Payload, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("stat %s: %w", f.path, err)
	}

	data, err := util.ReadFile(f.fs, f.path)
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("read %s: %w", f.path, err)
	}

	t, err := parseCSV(data)
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("parse %s: %w", f.path, err)
	}

	encoded, err := json.Marshal(t)
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("encode %s: %w", f.path, err)
	}

	return fetch.Payload{Data: encoded, Metadata: fileMetadata(info)}, nil
}

// Revalidate implements fetch.Revalidator.
func (f *fileLoader) Revalidate(_ context.Context, meta map[string]string) (fetch.Revalidation, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return fetch.Revalidation{}, fmt.Errorf("stat %s: %w", f.path, err)
	}
	if fileMetadata(info)[cache.MetaFingerprint] == meta[cache.MetaFingerprint] {
		return fetch.Unchanged(nil), nil
	}
	return fetch.Changed(nil), nil
}

func fileMetadata(info os.FileInfo) map[string]string {
	return map[string]string{
		cache.MetaFingerprint:  fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano()),
		cache.MetaLastModified: info.ModTime().UTC().Format(time.RFC3339Nano),
	}
}
