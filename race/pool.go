package race

import (
	"github.com/shopspring/decimal"

	"github.com/coreezy/sloth-race-watcher/types"
)

// ClassPool returns the part of total reserved for a class holding classPercent.
func ClassPool(total decimal.Decimal, classPercent int64) decimal.Decimal {
	return total.Mul(decimal.NewFromInt(classPercent)).Div(hundred)
}

// PerParticipant shares a class pool equally; an empty class gets zero.
func PerParticipant(classPool decimal.Decimal, participants int64) decimal.Decimal {
	if participants <= 0 {
		return decimal.Zero
	}
	return classPool.Div(decimal.NewFromInt(participants))
}

// ClassShare is one class's slice of the prize pool.
type ClassShare struct {
	Class          types.Class     `json:"class"`
	Percent        int64           `json:"percent"`
	Pool           decimal.Decimal `json:"pool"`
	Participants   int64           `json:"participants"`
	PerParticipant decimal.Decimal `json:"perParticipant"`
}

// Breakdown is the full apportionment of a pool total.
type Breakdown struct {
	Total  decimal.Decimal `json:"total"`
	Shares []ClassShare    `json:"shares"`
}

// Share returns the share of class, zero valued if absent.
func (b Breakdown) Share(class types.Class) ClassShare {
	for _, s := range b.Shares {
		if s.Class == class {
			return s
		}
	}
	return ClassShare{Class: class}
}

// Pool apportions a prize pool with fixed class percentages.
type Pool struct {
	percents map[types.Class]int64
}

// NewPool builds a pool from a validated config.
func NewPool(cfg PoolConfig) *Pool {
	return &Pool{percents: map[types.Class]int64{
		types.ClassAdult: cfg.AdultPercent,
		types.ClassTeen:  cfg.TeenPercent,
		types.ClassBaby:  cfg.BabyPercent,
	}}
}

// Percent returns the share of class in percent.
func (p *Pool) Percent(class types.Class) int64 {
	return p.percents[class]
}

// Split apportions total across the classes given their participant counts.
func (p *Pool) Split(total decimal.Decimal, counts map[types.Class]int64) Breakdown {
	b := Breakdown{Total: total}
	for _, class := range types.Classes {
		pct := p.percents[class]
		pool := ClassPool(total, pct)
		b.Shares = append(b.Shares, ClassShare{
			Class:          class,
			Percent:        pct,
			Pool:           pool,
			Participants:   counts[class],
			PerParticipant: PerParticipant(pool, counts[class]),
		})
	}
	return b
}
