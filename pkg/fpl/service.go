// Package fpl exposes the Fantasy Premier League datasets the analytics
// views consume, all read through the cache orchestrator.
//
// Raw endpoints (bootstrap-static, fixtures, element-summary) are cached as
// returned by the API. The derived player, team and gameweek tables are
// cached under their own keys and carry the fingerprint of the
// bootstrap-static document they were built from; once they age out they are
// revalidated by comparing that fingerprint with the current bootstrap entry.
package fpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
	"github.com/harshcurious/fpl-analytics/pkg/upstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Endpoint paths relative to the API root.
const (
	EndpointBootstrapStatic = "bootstrap-static"
	EndpointFixtures        = "fixtures"
	EndpointElementSummary  = "element-summary"
)

// derivedNamespace prefixes the keys of tables built from bootstrap-static.
const derivedNamespace = "derived/"

// Service reads FPL data through the orchestrator.
type Service struct {
	orch   *fetch.Orchestrator
	client *upstream.Client
	opts   []fetch.FetchOption
	logger zerolog.Logger
}

// NewService creates a service. opts apply to every fetch it makes.
func NewService(orch *fetch.Orchestrator, client *upstream.Client, opts ...fetch.FetchOption) *Service {
	if orch == nil || client == nil {
		panic("fpl: orchestrator and client are required")
	}
	return &Service{
		orch:   orch,
		client: client,
		opts:   opts,
		logger: log.With().Str("component", "fpl").Logger(),
	}
}

// Endpoint reads any API endpoint through the cache.
func (s *Service) Endpoint(ctx context.Context, endpoint string) (*fetch.Result, error) {
	l := upstream.NewEndpointLoader(s.client, endpoint, nil)
	key, err := l.Key()
	if err != nil {
		return nil, err
	}
	return s.orch.Fetch(ctx, key, l, s.opts...)
}

// BootstrapStatic returns the raw bootstrap-static document.
func (s *Service) BootstrapStatic(ctx context.Context) (*fetch.Result, error) {
	return s.Endpoint(ctx, EndpointBootstrapStatic)
}

// Dataset is a derived table together with the cache state it was served in.
type Dataset[T any] struct {
	Rows     []T
	Origin   fetch.Origin
	StoredAt time.Time

	// Stale is set when the upstream could not be reached and the rows come
	// from an earlier bootstrap-static document.
	Stale bool
}

// Players returns every player with derived analytics columns.
func (s *Service) Players(ctx context.Context) (*Dataset[Player], error) {
	return derived(ctx, s, "players", buildPlayers)
}

// Teams returns the clubs with trimmed names.
func (s *Service) Teams(ctx context.Context) (*Dataset[Team], error) {
	return derived(ctx, s, "teams", buildTeams)
}

// Gameweeks returns the season's rounds.
func (s *Service) Gameweeks(ctx context.Context) (*Dataset[Gameweek], error) {
	return derived(ctx, s, "gameweeks", buildGameweeks)
}

// Fixtures returns the season's fixtures, optionally narrowed to a team
// and a gameweek. Zero disables either filter.
func (s *Service) Fixtures(ctx context.Context, teamID, gameweek int) ([]Fixture, error) {
	res, err := s.Endpoint(ctx, EndpointFixtures)
	if err != nil {
		return nil, err
	}
	var fixtures []Fixture
	if err := json.Unmarshal(res.Payload, &fixtures); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return filterFixtures(fixtures, teamID, gameweek), nil
}

// PlayerSummary returns the element-summary for one player.
func (s *Service) PlayerSummary(ctx context.Context, playerID int) (*PlayerSummary, error) {
	if playerID <= 0 {
		return nil, fmt.Errorf("%w: player id must be positive, got %d", cache.ErrInvalidKeyInput, playerID)
	}
	res, err := s.Endpoint(ctx, fmt.Sprintf("%s/%d", EndpointElementSummary, playerID))
	if err != nil {
		return nil, err
	}
	var summary PlayerSummary
	if err := json.Unmarshal(res.Payload, &summary); err != nil {
		return nil, fmt.Errorf("decode element-summary %d: %w", playerID, err)
	}
	return &summary, nil
}

// FixturesWithFDR rates a team's next fixtures from its own side. It looks
// at the first 2*numGameweeks fixtures, which covers double gameweeks.
func (s *Service) FixturesWithFDR(ctx context.Context, teamID, numGameweeks int) ([]FixtureFDR, error) {
	fixtures, err := s.Fixtures(ctx, teamID, 0)
	if err != nil {
		return nil, err
	}
	teams, err := s.Teams(ctx)
	if err != nil {
		return nil, err
	}
	return fixturesWithFDR(fixtures, teams.Rows, teamID, numGameweeks), nil
}

// derived reads a table built from bootstrap-static.
//
// When bootstrap-static itself can only be served stale the table is never
// stored: the previous table is served stale, or, if there is none, the rows
// are built from the stale document and marked stale.
func derived[T any](ctx context.Context, s *Service, name string, build func(*bootstrapDoc) []T) (*Dataset[T], error) {
	key, err := cache.DeriveKey(derivedNamespace + name)
	if err != nil {
		return nil, err
	}

	l := &derivedLoader{svc: s, name: name, build: func(doc *bootstrapDoc) any { return build(doc) }}
	res, err := s.orch.Fetch(ctx, key, l, s.opts...)
	if errors.Is(err, errStaleSource) {
		return staleDataset(ctx, s, name, build)
	}
	if err != nil {
		return nil, err
	}

	var rows []T
	if err := json.Unmarshal(res.Payload, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if res.Stale {
		s.logger.Warn().
			Str("dataset", name).
			Time("stored_at", res.StoredAt).
			Bool("stale", true).
			Msg("Serving stale dataset")
	}
	return &Dataset[T]{Rows: rows, Origin: res.Origin, StoredAt: res.StoredAt, Stale: res.Stale}, nil
}

// staleDataset builds a table straight from the bootstrap-static entry
// without storing it.
func staleDataset[T any](ctx context.Context, s *Service, name string, build func(*bootstrapDoc) []T) (*Dataset[T], error) {
	doc, res, _, err := s.bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Warn().
		Str("dataset", name).
		Time("stored_at", res.StoredAt).
		Bool("stale", res.Stale).
		Msg("Building dataset from bootstrap without caching it")
	return &Dataset[T]{Rows: build(doc), Origin: res.Origin, StoredAt: res.StoredAt, Stale: res.Stale}, nil
}

// bootstrap reads and decodes bootstrap-static. The fingerprint falls back to
// hashing the payload for entries stored without one.
func (s *Service) bootstrap(ctx context.Context) (*bootstrapDoc, *fetch.Result, string, error) {
	res, err := s.BootstrapStatic(ctx)
	if err != nil {
		return nil, nil, "", err
	}

	var doc bootstrapDoc
	if err := json.Unmarshal(res.Payload, &doc); err != nil {
		return nil, nil, "", fmt.Errorf("decode bootstrap-static: %w", err)
	}

	fp := res.Metadata[cache.MetaFingerprint]
	if fp == "" {
		fp = upstream.Fingerprint(res.Payload)
	}
	return &doc, res, fp, nil
}

// errStaleSource stops a derived table renewing itself against a bootstrap
// document that was itself served stale.
var errStaleSource = errors.New("bootstrap-static served stale")

// derivedLoader builds one table from bootstrap-static.
type derivedLoader struct {
	svc   *Service
	name  string
	build func(*bootstrapDoc) any
}

// FetchFull implements fetch.Loader. A stale bootstrap document is reported
// as a failure so the table built from it is never stored as fresh.
func (l *derivedLoader) FetchFull(ctx context.Context) (fetch.Payload, error) {
	doc, res, fp, err := l.svc.bootstrap(ctx)
	if err != nil {
		return fetch.Payload{}, err
	}
	if res.Stale {
		return fetch.Payload{}, fmt.Errorf("%w: %w", errStaleSource, res.UpstreamErr)
	}
	return l.payload(doc, fp)
}

// Revalidate implements fetch.Revalidator by comparing the stored table's
// source fingerprint with the current bootstrap entry.
func (l *derivedLoader) Revalidate(ctx context.Context, meta map[string]string) (fetch.Revalidation, error) {
	doc, res, fp, err := l.svc.bootstrap(ctx)
	if err != nil {
		return fetch.Revalidation{}, err
	}
	if res.Stale {
		return fetch.Revalidation{}, fmt.Errorf("%w: %w", errStaleSource, res.UpstreamErr)
	}

	if fp == meta[cache.MetaFingerprint] {
		l.svc.logger.Debug().Str("dataset", l.name).Str("fingerprint", fp).Msg("Dataset source unchanged")
		return fetch.Unchanged(nil), nil
	}

	p, err := l.payload(doc, fp)
	if err != nil {
		return fetch.Revalidation{}, err
	}
	l.svc.logger.Info().Str("dataset", l.name).Str("fingerprint", fp).Msg("Rebuilt dataset from new bootstrap")
	return fetch.Changed(&p), nil
}

func (l *derivedLoader) payload(doc *bootstrapDoc, fingerprint string) (fetch.Payload, error) {
	data, err := json.Marshal(l.build(doc))
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("encode %s: %w", l.name, err)
	}
	return fetch.Payload{
		Data:     data,
		Metadata: map[string]string{cache.MetaFingerprint: fingerprint},
	}, nil
}
