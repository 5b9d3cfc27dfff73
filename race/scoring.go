package race

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Engine computes the daily distance of a delegator. All arithmetic is decimal so the
// same inputs always produce the same persisted score.
type Engine struct {
	delegationCap    decimal.Decimal
	metersPerUnit    decimal.Decimal
	restakeMul       decimal.Decimal
	siteVisitMul     decimal.Decimal
	streakPerDay     decimal.Decimal
	maxStreakBonus   decimal.Decimal
	restakeThreshold decimal.Decimal
	microPerUnit     decimal.Decimal
	scoreScale       decimal.Decimal
	siteVisitWindow  time.Duration
}

// NewEngine builds an engine from a validated scoring config.
func NewEngine(cfg ScoringConfig) *Engine {
	return &Engine{
		delegationCap:    decimal.NewFromFloat(cfg.DelegationCap),
		metersPerUnit:    decimal.NewFromFloat(cfg.MetersPerUnit),
		restakeMul:       decimal.NewFromFloat(cfg.RestakeMultiplier),
		siteVisitMul:     decimal.NewFromFloat(cfg.SiteVisitMultiplier),
		streakPerDay:     decimal.NewFromFloat(cfg.StreakBonusPerDay),
		maxStreakBonus:   decimal.NewFromFloat(cfg.MaxStreakBonus),
		restakeThreshold: decimal.NewFromFloat(cfg.RestakeThreshold),
		microPerUnit:     decimal.NewFromInt(cfg.MicroPerUnit),
		scoreScale:       decimal.NewFromInt(cfg.ScoreScale),
		siteVisitWindow:  cfg.SiteVisitWindow,
	}
}

// Units converts a base-denomination amount into principal units.
func (e *Engine) Units(micro int64) decimal.Decimal {
	return decimal.NewFromInt(micro).Div(e.microPerUnit)
}

// Capped clamps units into [0, delegationCap].
func (e *Engine) Capped(units decimal.Decimal) decimal.Decimal {
	if units.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(units, e.delegationCap)
}

// StreakFactor returns 1 + min(streak*perDay, maxBonus).
func (e *Engine) StreakFactor(streak int) decimal.Decimal {
	if streak <= 0 {
		return one
	}
	bonus := decimal.NewFromInt(int64(streak)).Mul(e.streakPerDay)
	return one.Add(decimal.Min(bonus, e.maxStreakBonus))
}

// DailyDistance returns today's distance in meters. boostPercents are the multipliers of
// the active boosts; each one compounds as an independent factor 1 + pct/100.
func (e *Engine) DailyDistance(units decimal.Decimal, restaking, visitedSite bool,
	boostPercents []int64, streak int) decimal.Decimal {
	distance := e.Capped(units).Mul(e.metersPerUnit)
	if restaking {
		distance = distance.Mul(e.restakeMul)
	}
	if visitedSite {
		distance = distance.Mul(e.siteVisitMul)
	}
	distance = distance.Mul(e.StreakFactor(streak))
	for _, pct := range boostPercents {
		if pct <= 0 {
			continue
		}
		distance = distance.Mul(one.Add(decimal.NewFromInt(pct).Div(hundred)))
	}
	return distance
}

// ToScore converts meters into the persisted unit (meters x scoreScale), rounding half
// to even.
func (e *Engine) ToScore(meters decimal.Decimal) int64 {
	return meters.Mul(e.scoreScale).RoundBank(0).IntPart()
}

// CappedScore returns the delegation score: capped units x scoreScale.
func (e *Engine) CappedScore(units decimal.Decimal) int64 {
	return e.Capped(units).Mul(e.scoreScale).RoundBank(0).IntPart()
}

// IsRestake reports whether the delegation grew by at least the restake threshold.
// A compounded reward and a fresh deposit of the same size look identical here.
func (e *Engine) IsRestake(current, previous decimal.Decimal) bool {
	return current.Sub(previous).GreaterThanOrEqual(e.restakeThreshold)
}

// SiteVisited reports whether lastVisit (unix seconds, 0 = never) falls inside the
// site visit window ending at now.
func (e *Engine) SiteVisited(lastVisit int64, now time.Time) bool {
	if lastVisit <= 0 {
		return false
	}
	return now.Sub(time.Unix(lastVisit, 0)) < e.siteVisitWindow
}

// EstimateDistance projects the distance covered over the next days, assuming the
// delegation stays put and a restaker keeps restaking every day.
func (e *Engine) EstimateDistance(units decimal.Decimal, restaking, visitedSite bool,
	boostPercents []int64, streak, days int) decimal.Decimal {
	total := decimal.Zero
	for i := 0; i < days; i++ {
		s := 0
		if restaking {
			s = streak + i
		}
		total = total.Add(e.DailyDistance(units, restaking, visitedSite, boostPercents, s))
	}
	return total
}

// DayOf returns the unix time of the UTC midnight starting t's day.
func DayOf(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
