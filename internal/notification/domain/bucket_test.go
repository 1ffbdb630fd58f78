package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildBucketsFoldsCountAndBounds(t *testing.T) {
	changes := []ChangeRecord{
		{ID: 2, ClientID: 7, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:07:00Z")},
		{ID: 3, ClientID: 7, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:10:00Z")},
		{ID: 1, ClientID: 7, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:05:00Z")},
	}

	buckets := BuildBuckets(changes, func(clientID int64, mealDate time.Time) int64 { return 3 })

	require.Len(t, buckets, 1)
	b := buckets[0]
	assert.Equal(t, int64(3), b.KitchenID)
	assert.Equal(t, int64(7), b.ClientID)
	assert.True(t, b.MealDate.Equal(day("2025-01-02")))
	assert.Equal(t, 3, b.Count)
	assert.True(t, b.FirstAt.Equal(at("2025-01-01T00:05:00Z")))
	assert.True(t, b.LastAt.Equal(at("2025-01-01T00:10:00Z")))
}

func TestBuildBucketsKeepsUnresolvedAndSorts(t *testing.T) {
	changes := []ChangeRecord{
		{ID: 1, ClientID: 9, MealDate: day("2025-01-03"), UpdatedAt: at("2025-01-01T00:01:00Z")},
		{ID: 2, ClientID: 8, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:02:00Z")},
		{ID: 3, ClientID: 7, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:03:00Z")},
	}
	kitchens := map[int64]int64{7: 3, 8: KitchenUnknown, 9: 5}

	buckets := BuildBuckets(changes, func(clientID int64, _ time.Time) int64 { return kitchens[clientID] })

	require.Len(t, buckets, 3)
	assert.Equal(t, int64(7), buckets[0].ClientID)
	assert.Equal(t, int64(8), buckets[1].ClientID)
	assert.Equal(t, KitchenUnknown, buckets[1].KitchenID)
	assert.Equal(t, int64(9), buckets[2].ClientID)
}

func TestBuildBucketsIsOrderIndependent(t *testing.T) {
	changes := []ChangeRecord{
		{ID: 1, ClientID: 7, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:05:00Z")},
		{ID: 2, ClientID: 8, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:06:00Z")},
		{ID: 3, ClientID: 7, MealDate: day("2025-01-03"), UpdatedAt: at("2025-01-01T00:07:00Z")},
		{ID: 4, ClientID: 7, MealDate: day("2025-01-02"), UpdatedAt: at("2025-01-01T00:08:00Z")},
	}
	reversed := make([]ChangeRecord, len(changes))
	for i := range changes {
		reversed[len(changes)-1-i] = changes[i]
	}
	kitchen := func(int64, time.Time) int64 { return 1 }

	assert.Equal(t, BuildBuckets(changes, kitchen), BuildBuckets(reversed, kitchen))
}

func TestIsUnread(t *testing.T) {
	t1 := at("2025-01-01T00:10:00Z")
	t2 := at("2025-01-01T00:12:00Z")
	t3 := at("2025-01-01T00:14:00Z")
	t4 := at("2025-01-01T00:20:00Z")

	assert.True(t, IsUnread(nil, t2))
	assert.True(t, IsUnread(&t1, t2))
	assert.False(t, IsUnread(&t3, t2))
	assert.True(t, IsUnread(&t3, t4))
	assert.False(t, IsUnread(&t2, t2))
}

func TestWindow(t *testing.T) {
	w := Window{Lower: at("2025-01-01T00:00:00Z"), Upper: at("2025-01-01T00:15:00Z")}
	assert.False(t, w.Empty())
	assert.Equal(t, 15*time.Minute, w.Width())

	assert.True(t, Window{Lower: w.Upper, Upper: w.Upper}.Empty())
	assert.True(t, Window{Lower: w.Upper, Upper: w.Lower}.Empty())
}
