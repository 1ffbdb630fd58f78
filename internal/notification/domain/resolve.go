package domain

import (
	"cmp"
	"slices"
	"time"
)

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// covers reports whether date lies in [start, end) with a nil end open-ended.
func covers(start time.Time, end *time.Time, date time.Time) bool {
	date = DateOf(date)
	if DateOf(start).After(date) {
		return false
	}
	return end == nil || date.Before(DateOf(*end))
}

type ContractCandidate struct {
	ID        int64
	ClientID  int64
	Status    string
	StartDate time.Time
	EndDate   *time.Time
}

func (c ContractCandidate) Active() bool {
	return c.Status == ContractStatusActive
}

// Eligible reports whether the contract can govern date.
func (c ContractCandidate) Eligible(date time.Time) bool {
	if c.Status != ContractStatusActive && c.Status != ContractStatusPlanned {
		return false
	}
	return covers(c.StartDate, c.EndDate, date)
}

type KitchenPeriodCandidate struct {
	ID         int64
	ContractID int64
	KitchenID  int64
	StartDate  time.Time
	EndDate    *time.Time
}

// Covers falls back to contractEnd when the period itself is open-ended.
func (p KitchenPeriodCandidate) Covers(date time.Time, contractEnd *time.Time) bool {
	end := p.EndDate
	if end == nil {
		end = contractEnd
	}
	return covers(p.StartDate, end, date)
}

// RankContracts orders candidates best first: active before planned, then
// latest start date, then highest id. The input slice is not modified.
func RankContracts(candidates []ContractCandidate) []ContractCandidate {
	out := slices.Clone(candidates)
	slices.SortFunc(out, func(a, b ContractCandidate) int {
		if a.Active() != b.Active() {
			if a.Active() {
				return -1
			}
			return 1
		}
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// RankKitchenPeriods orders periods by latest start date, then highest id.
func RankKitchenPeriods(periods []KitchenPeriodCandidate) []KitchenPeriodCandidate {
	out := slices.Clone(periods)
	slices.SortFunc(out, func(a, b KitchenPeriodCandidate) int {
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// ResolveContract picks the single contract governing clientID on date.
func ResolveContract(candidates []ContractCandidate, clientID int64, date time.Time) (ContractCandidate, bool) {
	eligible := make([]ContractCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ClientID == clientID && c.Eligible(date) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return ContractCandidate{}, false
	}
	return RankContracts(eligible)[0], true
}

// ResolveKitchen picks the kitchen serving contractID on date, or KitchenUnknown.
func ResolveKitchen(periods []KitchenPeriodCandidate, contractID int64, date time.Time, contractEnd *time.Time) int64 {
	eligible := make([]KitchenPeriodCandidate, 0, len(periods))
	for _, p := range periods {
		if p.ContractID == contractID && p.Covers(date, contractEnd) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return KitchenUnknown
	}
	return RankKitchenPeriods(eligible)[0].KitchenID
}
