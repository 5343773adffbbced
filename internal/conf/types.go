package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration object.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Resilience *Resilience
	Log        *Log
}

// Server holds transport configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the ops HTTP endpoint.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds backing store configuration.
type Data struct {
	Redis    *Data_Redis
	Database *Data_Database
}

// Data_Redis configures the coordination store. Addr may be empty: the
// limiter then runs on the in-memory window only.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	DialTimeout  *durationpb.Duration
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Data_Database configures the optional audit-log database. Source may be
// empty: transitions are then logged but not persisted.
type Data_Database struct {
	Driver string
	Source string
}

// Resilience tunes the limiter, queue and maintenance schedules.
type Resilience struct {
	RateLimit *Resilience_RateLimit
}

// Resilience_RateLimit configures rate limiter policy and housekeeping.
type Resilience_RateLimit struct {
	// Policy is "fail_open" (default) or "fail_closed": what to do when the
	// limit check itself fails.
	Policy string
	// QueueDrainInterval is the fixed tick releasing one queued request per
	// identifier.
	QueueDrainInterval *durationpb.Duration
	// ProbeInterval is the liveness-probe cadence for the coordination store.
	ProbeInterval *durationpb.Duration
	// MemorySweepInterval is the cleanup cadence for expired in-memory windows.
	MemorySweepInterval *durationpb.Duration
	// MaxTrackedIdentifiers bounds the in-memory fallback map.
	MaxTrackedIdentifiers int
	// MaxRetries is the default attempt budget for ExecuteWithRateLimit.
	MaxRetries int
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
