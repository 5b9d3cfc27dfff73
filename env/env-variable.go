package env

import "github.com/coreezy/sloth-race-watcher/common/config"

// IsCI returns true if we are in CI mode.
func IsCI() bool {
	return config.GetBool("CI", false)
}

// ResetDatabase returns true if the tables should be dropped and recreated at start-up.
func ResetDatabase() bool {
	return config.GetBool("RESET_DATABASE", false)
}

// ValidatorEnabled returns true if the replica validator should run next to the watcher.
func ValidatorEnabled() bool {
	return config.GetString("BACKUP_DB_ARGS", "") != ""
}
