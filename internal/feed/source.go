package feed

import (
	"context"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler receives every message a source produces
type Handler func(ctx context.Context, msg models.RawMessage)

// Source produces raw tip messages until ctx is done
type Source interface {
	Name() string
	Run(ctx context.Context, handle Handler) error
}

// Runner runs a set of sources side by side
type Runner struct {
	sources []Source
	logger  *zap.Logger
}

// NewRunner creates a runner over the given sources
func NewRunner(logger *zap.Logger, sources ...Source) *Runner {
	return &Runner{
		sources: sources,
		logger:  logger.Named("feed"),
	}
}

// Len returns the number of configured sources
func (r *Runner) Len() int {
	return len(r.sources)
}

// Run blocks until every source has returned. A failing source is logged
// and does not stop the others.
func (r *Runner) Run(ctx context.Context, handle Handler) {
	var g errgroup.Group
	for _, src := range r.sources {
		src := src
		g.Go(func() error {
			r.logger.Info("feed source started", zap.String("source", src.Name()))
			err := src.Run(ctx, handle)
			if err != nil && ctx.Err() == nil {
				r.logger.Error("feed source stopped", zap.String("source", src.Name()), zap.Error(err))
				return nil
			}
			r.logger.Info("feed source stopped", zap.String("source", src.Name()))
			return nil
		})
	}
	g.Wait()
}
