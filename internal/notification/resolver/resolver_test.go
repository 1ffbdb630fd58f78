package resolver

import (
	"context"
	"testing"

	"github.com/smallbiznis/catering/internal/notification/domain"
	"github.com/smallbiznis/catering/internal/notification/notificationtest"
	"github.com/smallbiznis/catering/internal/notification/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesAgainstCatalog(t *testing.T) {
	db := notificationtest.Open(t)
	seed := notificationtest.NewSeeder(t, db)

	seed.Contract(1, 7, domain.ContractStatusPlanned, notificationtest.Date(t, "2024-01-01"), nil)
	seed.Contract(2, 7, domain.ContractStatusActive, notificationtest.Date(t, "2024-01-01"), notificationtest.DatePtr(t, "2025-01-10"))
	seed.Contract(3, 8, domain.ContractStatusActive, notificationtest.Date(t, "2024-01-01"), nil)
	seed.KitchenPeriod(10, 2, 500, notificationtest.Date(t, "2024-01-01"), nil)
	seed.KitchenPeriod(11, 2, 501, notificationtest.Date(t, "2025-01-05"), nil)
	seed.KitchenPeriod(12, 1, 900, notificationtest.Date(t, "2024-01-01"), nil)

	catalog, err := New(repository.Provide()).Load(context.Background(), db, []int64{7, 7, 9})
	require.NoError(t, err)

	assert.Equal(t, int64(500), catalog.KitchenOf(7, notificationtest.Date(t, "2025-01-02")))
	assert.Equal(t, int64(501), catalog.KitchenOf(7, notificationtest.Date(t, "2025-01-06")))
	// contract 2 ends exclusively on 2025-01-10, so the planned contract takes over
	assert.Equal(t, int64(900), catalog.KitchenOf(7, notificationtest.Date(t, "2025-01-10")))
	assert.Equal(t, domain.KitchenUnknown, catalog.KitchenOf(9, notificationtest.Date(t, "2025-01-02")))
	// client 8 was not requested
	assert.Equal(t, domain.KitchenUnknown, catalog.KitchenOf(8, notificationtest.Date(t, "2025-01-02")))
}

func TestKitchenOfFallsBackToContractEnd(t *testing.T) {
	contractEnd := notificationtest.DatePtr(t, "2025-02-01")
	catalog := NewCatalog(
		[]domain.ContractCandidate{{ID: 1, ClientID: 7, Status: domain.ContractStatusActive, StartDate: notificationtest.Date(t, "2025-01-01"), EndDate: contractEnd}},
		[]domain.KitchenPeriodCandidate{{ID: 1, ContractID: 1, KitchenID: 42, StartDate: notificationtest.Date(t, "2025-01-01")}},
	)

	assert.Equal(t, int64(42), catalog.KitchenOf(7, notificationtest.Date(t, "2025-01-31")))
	assert.Equal(t, domain.KitchenUnknown, catalog.KitchenOf(7, notificationtest.Date(t, "2025-02-01")))

	contract, ok := catalog.ResolveContract(7, notificationtest.Date(t, "2025-01-15"))
	require.True(t, ok)
	assert.Equal(t, int64(1), contract.ID)
	assert.Equal(t, int64(42), catalog.ResolveKitchen(1, notificationtest.Date(t, "2025-01-15"), contract.EndDate))
}
