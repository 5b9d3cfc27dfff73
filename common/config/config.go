package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Read-only map containing all environment variables, filled once at start-up.
var strEnvMap = make(map[string]string)

// Parsed values are cached per key and target type.
var parsedEnvMap = make(map[string]interface{})

// Mutex protecting both maps.
var envMapMutex sync.RWMutex

func init() {
	for _, entry := range os.Environ() {
		pair := strings.SplitN(entry, "=", 2)
		if len(pair) != 2 {
			continue
		}
		strEnvMap[pair[0]] = pair[1]
	}
}

// lookup returns the parsed value of key. When the key is absent the first default is
// returned; without a default a missing key panics, as do values parse cannot read.
func lookup[T any](key string, parse func(string) (T, error), def []T) T {
	var zero T
	cacheKey := fmt.Sprintf("%s:%T", key, zero)
	envMapMutex.RLock()
	if v, exists := parsedEnvMap[cacheKey]; exists {
		envMapMutex.RUnlock()
		return v.(T)
	}
	strVal, strExists := strEnvMap[key]
	envMapMutex.RUnlock()

	if !strExists {
		if len(def) == 0 {
			panic(fmt.Errorf("setting %s does not exist", key))
		}
		return def[0]
	}

	result, err := parse(strVal)
	if err != nil {
		panic(fmt.Errorf("failed to parse setting %s=%q, err=%w", key, strVal, err))
	}
	envMapMutex.Lock()
	parsedEnvMap[cacheKey] = result
	envMapMutex.Unlock()
	return result
}

// GetString returns a setting in string.
func GetString(key string, def ...string) string {
	return lookup(key, func(s string) (string, error) { return s, nil }, def)
}

// GetBool returns a setting in bool.
func GetBool(key string, def ...bool) bool {
	return lookup(key, strconv.ParseBool, def)
}

// GetInt returns a setting in integer.
func GetInt(key string, def ...int) int {
	return lookup(key, func(s string) (int, error) {
		v, err := strconv.ParseInt(s, 0, 32)
		return int(v), err
	}, def)
}

// GetInt64 returns a setting in int64.
func GetInt64(key string, def ...int64) int64 {
	return lookup(key, func(s string) (int64, error) {
		return strconv.ParseInt(s, 0, 64)
	}, def)
}

// GetFloat64 returns a setting in float64.
func GetFloat64(key string, def ...float64) float64 {
	return lookup(key, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, def)
}

// GetDuration returns a setting in time.Duration, written as "90s", "5m" or "24h".
func GetDuration(key string, def ...time.Duration) time.Duration {
	return lookup(key, time.ParseDuration, def)
}

// SetString overrides a setting. Mostly used by tests and CLI flags.
func SetString(key string, value string) {
	envMapMutex.Lock()
	strEnvMap[key] = value
	for cacheKey := range parsedEnvMap {
		if strings.HasPrefix(cacheKey, key+":") {
			delete(parsedEnvMap, cacheKey)
		}
	}
	envMapMutex.Unlock()
}
