package domain

import (
	"context"
	"time"
)

// DataProvider supplies the asset universe and aligned return histories.
type DataProvider interface {
	// Assets returns the investable universe.
	Assets(ctx context.Context) ([]Asset, error)

	// ReturnSeries returns aligned returns for the given assets, optionally truncated to
	// periods on or before until. Only periods where every asset has a value are kept.
	ReturnSeries(ctx context.Context, assetIDs []int64, until *time.Time) (*ReturnSeries, error)
}

// PersistenceSink stores optimization outcomes.
type PersistenceSink interface {
	SaveOptimization(ctx context.Context, result *OptimizationResult) error
}

// ConfigSource resolves tuned evolution parameters for a problem shape.
// Lookup returns nil without error when nothing applies.
type ConfigSource interface {
	Lookup(ctx context.Context, assetCount int, profile RiskProfile) (*HyperparameterConfig, error)
}
