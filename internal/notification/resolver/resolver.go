// Package resolver maps a client and a date to the governing contract and
// servicing kitchen using catalog rows prefetched per aggregation window.
package resolver

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/smallbiznis/catering/internal/notification/domain"
	"gorm.io/gorm"
)

type Resolver struct {
	repo domain.Repository
}

func New(repo domain.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Load fetches contracts for clientIDs and the kitchen periods of those
// contracts in two queries.
func (r *Resolver) Load(ctx context.Context, db *gorm.DB, clientIDs []int64) (*Catalog, error) {
	clientIDs = uniqueIDs(clientIDs)

	contracts, err := r.repo.ListContractCandidates(ctx, db, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	contractIDs := make([]int64, 0, len(contracts))
	for _, c := range contracts {
		contractIDs = append(contractIDs, c.ID)
	}
	periods, err := r.repo.ListKitchenPeriods(ctx, db, uniqueIDs(contractIDs))
	if err != nil {
		return nil, fmt.Errorf("list kitchen periods: %w", err)
	}

	return NewCatalog(contracts, periods), nil
}

type resolveKey struct {
	clientID int64
	date     time.Time
}

// Catalog answers resolution queries from memory. It is not safe for
// concurrent use.
type Catalog struct {
	contractsByClient map[int64][]domain.ContractCandidate
	periodsByContract map[int64][]domain.KitchenPeriodCandidate
	kitchens          map[resolveKey]int64
}

func NewCatalog(contracts []domain.ContractCandidate, periods []domain.KitchenPeriodCandidate) *Catalog {
	c := &Catalog{
		contractsByClient: make(map[int64][]domain.ContractCandidate),
		periodsByContract: make(map[int64][]domain.KitchenPeriodCandidate),
		kitchens:          make(map[resolveKey]int64),
	}
	for _, contract := range contracts {
		c.contractsByClient[contract.ClientID] = append(c.contractsByClient[contract.ClientID], contract)
	}
	for _, period := range periods {
		c.periodsByContract[period.ContractID] = append(c.periodsByContract[period.ContractID], period)
	}
	return c
}

func (c *Catalog) ResolveContract(clientID int64, date time.Time) (domain.ContractCandidate, bool) {
	return domain.ResolveContract(c.contractsByClient[clientID], clientID, date)
}

func (c *Catalog) ResolveKitchen(contractID int64, date time.Time, contractEnd *time.Time) int64 {
	return domain.ResolveKitchen(c.periodsByContract[contractID], contractID, date, contractEnd)
}

// KitchenOf resolves contract then kitchen, memoized per (client, day).
func (c *Catalog) KitchenOf(clientID int64, date time.Time) int64 {
	key := resolveKey{clientID: clientID, date: domain.DateOf(date)}
	if kitchen, ok := c.kitchens[key]; ok {
		return kitchen
	}

	kitchen := domain.KitchenUnknown
	if contract, ok := c.ResolveContract(clientID, key.date); ok {
		kitchen = c.ResolveKitchen(contract.ID, key.date, contract.EndDate)
	}
	c.kitchens[key] = kitchen
	return kitchen
}

func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
