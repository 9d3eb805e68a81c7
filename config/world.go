package config

import "time"

// WorldConfig holds the tunables that govern the tick scheduler, the
// synchronizer, the persistence flush loop, the identity cache, and the
// staggered tile grid. Every field except MovementWalkSpeed and
// MovementRunSpeed is overridable from the environment using the same
// prefix-based lookup as the rest of this package.
type WorldConfig struct {
	// TickFrequency is the scheduler's base tick period.
	TickFrequency time.Duration
	// SyncFrequency is how often the synchronizer drains change sets.
	SyncFrequency time.Duration
	// DBFlushFrequency is how often the persistence gateway flushes dirty entities.
	DBFlushFrequency time.Duration
	// CacheCleanFrequency is how often the identity cache sweeps expired weak entries.
	CacheCleanFrequency time.Duration
	// CacheDefaultDuration is how long a strong entry survives without access.
	CacheDefaultDuration time.Duration

	// SubzoneSizeX/SubzoneSizeY are the tile dimensions of one subzone.
	SubzoneSizeX int
	SubzoneSizeY int

	// MovementWalkSpeed/MovementRunSpeed are tiles-per-second movement rates.
	MovementWalkSpeed float64
	MovementRunSpeed  float64

	// DatabaseURL is the DSN for the relational store.
	DatabaseURL string

	// Locale selects the translation table used for info/error codes.
	Locale string
}

// DefaultWorldConfig mirrors the defaults named in the configuration section:
// 16ms ticks, 100ms sync/flush, and a modest subzone footprint.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		TickFrequency:        16 * time.Millisecond,
		SyncFrequency:        100 * time.Millisecond,
		DBFlushFrequency:     100 * time.Millisecond,
		CacheCleanFrequency:  30 * time.Second,
		CacheDefaultDuration: 5 * time.Minute,
		SubzoneSizeX:         16,
		SubzoneSizeY:         32,
		MovementWalkSpeed:    2.0,
		MovementRunSpeed:     4.0,
		DatabaseURL:          "postgres://localhost:5432/tileworld?sslmode=disable",
		Locale:               "en",
	}
}

// LoadWorldConfig loads WorldConfig from the environment, falling back to
// DefaultWorldConfig for anything unset. The movement speeds are not read
// from the environment; they always take the DefaultWorldConfig values.
func LoadWorldConfig(prefix string) WorldConfig {
	env := NewEnvConfig(prefix)
	d := DefaultWorldConfig()
	return WorldConfig{
		TickFrequency:        env.GetDuration("TICK_FREQUENCY", d.TickFrequency),
		SyncFrequency:        env.GetDuration("SYNC_FREQUENCY", d.SyncFrequency),
		DBFlushFrequency:     env.GetDuration("DB_FLUSH_FREQUENCY", d.DBFlushFrequency),
		CacheCleanFrequency:  env.GetDuration("CACHE_CLEAN_FREQUENCY", d.CacheCleanFrequency),
		CacheDefaultDuration: env.GetDuration("CACHE_DEFAULT_DURATION", d.CacheDefaultDuration),
		SubzoneSizeX:         env.GetInt("SUBZONE_SIZE_X", d.SubzoneSizeX),
		SubzoneSizeY:         env.GetInt("SUBZONE_SIZE_Y", d.SubzoneSizeY),
		MovementWalkSpeed:    d.MovementWalkSpeed,
		MovementRunSpeed:     d.MovementRunSpeed,
		DatabaseURL:          env.GetString("DATABASE_URL", d.DatabaseURL),
		Locale:               env.GetString("LOCALE", d.Locale),
	}
}

// Validate checks the configuration for the startup-fatal conditions named
// in the error taxonomy's Configuration category.
func (w WorldConfig) Validate() error {
	v := NewValidator()
	v.RequirePositiveInt("SubzoneSizeX", w.SubzoneSizeX)
	v.RequirePositiveInt("SubzoneSizeY", w.SubzoneSizeY)
	v.RequireString("DatabaseURL", w.DatabaseURL)
	if w.TickFrequency <= 0 {
		v.errors = append(v.errors, "TickFrequency must be positive")
	}
	return v.Validate()
}
