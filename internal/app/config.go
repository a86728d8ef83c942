package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Chat credential verification. An empty secret makes the server generate
	// an ephemeral one at boot (dev only: tokens do not survive restarts).
	JWTSecret string
	JWTTTL    time.Duration

	// Websocket origin policy. Empty list means same-host only.
	WSAllowedOrigins []string
	WSDevInsecure    bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("WEBDOC_HTTP_ADDR", "0.0.0.0:10610"),
		LogLevel: EnvString("WEBDOC_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("WEBDOC_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WEBDOC_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WEBDOC_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WEBDOC_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WEBDOC_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WEBDOC_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WEBDOC_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WEBDOC_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("WEBDOC_READINESS_REQUIRE_DB", false),

		JWTSecret: EnvString("WEBDOC_JWT_SECRET", ""),
		JWTTTL:    EnvDuration("WEBDOC_JWT_TTL", 24*time.Hour),

		WSAllowedOrigins: EnvCSV("WEBDOC_WS_ALLOWED_ORIGINS", ""),
		WSDevInsecure:    EnvBool("WEBDOC_WS_DEV_INSECURE", false),
	}
}
