package aggregate

import (
	"context"
	"fmt"

	"github.com/smallbiznis/catering/internal/notification/domain"
	"github.com/smallbiznis/catering/internal/notification/resolver"
	"gorm.io/gorm"
)

type Result struct {
	Changes int
	Buckets []domain.Bucket
}

type Aggregator struct {
	repo     domain.Repository
	resolver *resolver.Resolver
}

func New(repo domain.Repository, res *resolver.Resolver) *Aggregator {
	return &Aggregator{repo: repo, resolver: res}
}

// Aggregate groups relevant changes inside window into per (kitchen, client,
// meal date) buckets. An empty window yields no buckets without querying.
func (a *Aggregator) Aggregate(ctx context.Context, tx *gorm.DB, window domain.Window) (Result, error) {
	if window.Empty() {
		return Result{}, nil
	}

	changes, err := a.repo.ListChanges(ctx, tx, window)
	if err != nil {
		return Result{}, fmt.Errorf("list changes: %w", err)
	}
	if len(changes) == 0 {
		return Result{}, nil
	}

	clientIDs := make([]int64, 0, len(changes))
	for _, change := range changes {
		clientIDs = append(clientIDs, change.ClientID)
	}
	catalog, err := a.resolver.Load(ctx, tx, clientIDs)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Changes: len(changes),
		Buckets: domain.BuildBuckets(changes, catalog.KitchenOf),
	}, nil
}
