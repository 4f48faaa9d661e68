// Package analysis wires the name-combination pipeline together for the
// CLI entry points: a one-shot analysis run and the long-running API server.
package analysis

import (
	"github.com/nameatlas/nameatlas/internal/aggregator"
	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/gateway"
)

// buildPipeline constructs the provider gateway from the configured
// providers and the aggregator on top of it. The caller owns the gateway
// and must Close it when done.
func buildPipeline(settings *conf.Settings) (*aggregator.Aggregator, *gateway.Gateway, error) {
	gw, err := gateway.FromSettings(settings)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Context("operation", "build_pipeline").
			Build()
	}

	agg, err := aggregator.New(gw)
	if err != nil {
		gw.Close()
		return nil, nil, err
	}

	return agg, gw, nil
}
