package domain

import (
	"cmp"
	"slices"
	"time"
)

// Window is the half-open scan range (Lower, Upper].
type Window struct {
	Lower time.Time `json:"lower"`
	Upper time.Time `json:"upper"`
}

// Empty is true when the clock has not moved past the stored watermark.
func (w Window) Empty() bool {
	return !w.Upper.After(w.Lower)
}

func (w Window) Width() time.Duration {
	if w.Empty() {
		return 0
	}
	return w.Upper.Sub(w.Lower)
}

// ChangeRecord is one relevant meal entry change inside a window.
type ChangeRecord struct {
	ID        int64
	ClientID  int64
	MealDate  time.Time
	UpdatedAt time.Time
}

type BucketKey struct {
	KitchenID int64
	ClientID  int64
	MealDate  time.Time
}

type Bucket struct {
	BucketKey
	Count   int
	FirstAt time.Time
	LastAt  time.Time
}

// KitchenFunc maps a (client, meal date) pair to its servicing kitchen.
type KitchenFunc func(clientID int64, mealDate time.Time) int64

// BuildBuckets folds changes into per (kitchen, client, date) buckets sorted
// by meal date, client and kitchen. The result does not depend on input order.
func BuildBuckets(changes []ChangeRecord, kitchenOf KitchenFunc) []Bucket {
	index := make(map[BucketKey]int, len(changes))
	buckets := make([]Bucket, 0)

	for _, change := range changes {
		mealDate := DateOf(change.MealDate)
		key := BucketKey{
			KitchenID: kitchenOf(change.ClientID, mealDate),
			ClientID:  change.ClientID,
			MealDate:  mealDate,
		}
		at := change.UpdatedAt.UTC()

		pos, ok := index[key]
		if !ok {
			index[key] = len(buckets)
			buckets = append(buckets, Bucket{BucketKey: key, Count: 1, FirstAt: at, LastAt: at})
			continue
		}
		b := &buckets[pos]
		b.Count++
		if at.Before(b.FirstAt) {
			b.FirstAt = at
		}
		if at.After(b.LastAt) {
			b.LastAt = at
		}
	}

	slices.SortFunc(buckets, func(a, b Bucket) int {
		if c := a.MealDate.Compare(b.MealDate); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ClientID, b.ClientID); c != 0 {
			return c
		}
		return cmp.Compare(a.KitchenID, b.KitchenID)
	})
	return buckets
}

// IsUnread derives read state from the caller's marker and the event's last activity.
func IsUnread(readAt *time.Time, lastAt time.Time) bool {
	return readAt == nil || readAt.Before(lastAt)
}
