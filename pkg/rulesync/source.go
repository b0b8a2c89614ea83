package rulesync

import (
	"context"
	"errors"
	"time"

	"github.com/HatiCode/rulesync/pkg/aggregate"
	"github.com/HatiCode/rulesync/pkg/client"
	"github.com/HatiCode/rulesync/pkg/window"
)

// ActiveSource supplies the names of the currently active protocols,
// most active first.
type ActiveSource interface {
	ActiveProtocols(ctx context.Context) ([]string, error)
	Name() string
}

// RankFileSource reads the rank file written by the poller. A missing file
// means no active protocols.
type RankFileSource struct {
	Path string
}

func (s RankFileSource) Name() string { return "rankfile" }

func (s RankFileSource) ActiveProtocols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return aggregate.ReadRankFile(s.Path)
}

// WindowSource aggregates the shared window store directly, for deployments
// where the syncer does not wait for the poller's rank file.
type WindowSource struct {
	Store    window.Store
	Duration time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s WindowSource) Name() string { return "window" }

func (s WindowSource) ActiveProtocols(ctx context.Context) ([]string, error) {
	w, err := s.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	d := s.Duration
	if d <= 0 {
		d = window.DefaultDuration
	}
	return aggregate.Names(aggregate.Aggregate(window.Prune(w, now(), d))), nil
}

// ErrStaleRanking is returned by ClientSource when the poller reports that
// its ranking is stale and stale rankings are rejected.
var ErrStaleRanking = errors.New("poller ranking is stale")

// ClientSource asks a running poller over HTTP.
type ClientSource struct {
	Client      *client.PollerClient
	RejectStale bool
}

func (s ClientSource) Name() string { return "poller" }

func (s ClientSource) ActiveProtocols(ctx context.Context) ([]string, error) {
	res, err := s.Client.GetProtocols(ctx)
	if err != nil {
		return nil, err
	}
	if res.Stale && s.RejectStale {
		return nil, ErrStaleRanking
	}
	return aggregate.Names(res.Protocols), nil
}
