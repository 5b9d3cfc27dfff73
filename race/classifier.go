package race

import (
	"github.com/shopspring/decimal"

	"github.com/coreezy/sloth-race-watcher/types"
)

// Ranked is one profile in a full recompute, listed by total score descending.
type Ranked struct {
	ProfileID int64
	Class     types.Class
}

// Change is a class reassignment produced by Classify.
type Change struct {
	ProfileID int64
	From      types.Class
	To        types.Class
}

// Bands returns the cut indices of a population of n: indices [0, adultEnd) are ADULT,
// [adultEnd, teenEnd) TEEN and the rest BABY.
func Bands(n int) (adultEnd, teenEnd int) {
	if n <= 0 {
		return 0, 0
	}
	return (n + 2) / 3, (2*n + 2) / 3
}

// ClassAt returns the class of the profile at index in a population of n.
func ClassAt(index, n int) types.Class {
	adultEnd, teenEnd := Bands(n)
	switch {
	case index < adultEnd:
		return types.ClassAdult
	case index < teenEnd:
		return types.ClassTeen
	default:
		return types.ClassBaby
	}
}

// Classify partitions ranked into three bands and returns only the profiles whose class
// changes. Ties keep the order of ranked.
func Classify(ranked []Ranked) []Change {
	var changes []Change
	for i, r := range ranked {
		to := ClassAt(i, len(ranked))
		if to != r.Class {
			changes = append(changes, Change{ProfileID: r.ProfileID, From: r.Class, To: to})
		}
	}
	return changes
}

// Classifier places a single new profile without touching the others.
type Classifier struct {
	adultCut decimal.Decimal
	teenCut  decimal.Decimal
}

// NewClassifier builds a classifier from the season's percentile cut-offs.
func NewClassifier(cfg ClassConfig) *Classifier {
	return &Classifier{
		adultCut: decimal.NewFromFloat(cfg.AdultPercentile),
		teenCut:  decimal.NewFromFloat(cfg.TeenPercentile),
	}
}

// ClassForRank returns the class for a profile outscored by higher of total profiles.
// ok is false when total is zero and no class should be assigned.
func (c *Classifier) ClassForRank(higher, total int64) (class types.Class, ok bool) {
	if total <= 0 {
		return "", false
	}
	percentile := decimal.NewFromInt(higher).Div(decimal.NewFromInt(total)).Mul(hundred)
	switch {
	case percentile.LessThan(c.adultCut):
		return types.ClassAdult, true
	case percentile.LessThan(c.teenCut):
		return types.ClassTeen, true
	default:
		return types.ClassBaby, true
	}
}
