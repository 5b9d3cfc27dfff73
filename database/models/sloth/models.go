package sloth

import "github.com/coreezy/sloth-race-watcher/database/models"

// AllModels collects available models, parents before children.
var AllModels = []interface{}{
	&models.System{},

	&User{},
	&Profile{},
	&Boost{},
	&BoostRequest{},
	&DailySnapshot{},
	&PrizePool{},
	&PrizePoolEvent{},
	&JobLock{},
}

func cascadeTo(field, dest string) []models.ForeignKeyConstraint {
	return []models.ForeignKeyConstraint{
		{
			Field:    field,
			Dest:     dest,
			OnDelete: "CASCADE",
			OnUpdate: "RESTRICT",
		},
	}
}
