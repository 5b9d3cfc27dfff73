package types

// AppType specifies app type.
type AppType string

// AppType enums.
const (
	Race AppType = "race"
)

// SysVar specifies the system variables.
type SysVar string

// SysVarSchemaVersion SysVar enums.
const (
	SysVarSchemaVersion SysVar = "schema_version"
)

// LockName names an advisory lock row.
type LockName string

// LockName enums.
const (
	LockDailySnapshot LockName = "daily-snapshot"
	LockBoostVerify   LockName = "boost-verify"
)

// Class is the percentile tier of a racing sloth.
type Class string

// Class enums, fastest first.
const (
	ClassAdult Class = "ADULT"
	ClassTeen  Class = "TEEN"
	ClassBaby  Class = "BABY"
)

// Classes lists every class from the top band down.
var Classes = []Class{ClassAdult, ClassTeen, ClassBaby}

// BoostStatus is the state of a boost proof submission.
type BoostStatus string

// BoostStatus enums.
const (
	BoostPending  BoostStatus = "PENDING"
	BoostApproved BoostStatus = "APPROVED"
	BoostRejected BoostStatus = "REJECTED"
)

// PoolEventKind names a prize pool mutation.
type PoolEventKind string

// PoolEventKind enums.
const (
	PoolBonus      PoolEventKind = "bonus"
	PoolCommission PoolEventKind = "commission"
	PoolSetTotal   PoolEventKind = "set_total"
)
