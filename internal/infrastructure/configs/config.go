package configs

import (
	"fmt"
	"time"

	"github.com/hilthontt/remotepad/internal/infrastructure/env"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/tracing"
	"github.com/hilthontt/remotepad/internal/motion"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	Rooms       RoomsConfig       `koanf:"rooms"`
	Pairing     PairingConfig     `koanf:"pairing"`
	Tunnel      TunnelConfig      `koanf:"tunnel"`
	OSC         OSCConfig         `koanf:"osc"`
	Sink        SinkConfig        `koanf:"sink"`
	Motion      MotionConfig      `koanf:"motion"`
	RateLimiter RateLimiterConfig `koanf:"rateLimiter"`
	Logger      LoggerConfig      `koanf:"logger"`
	Tracing     TracingConfig     `koanf:"tracing"`
	AMQP        AMQPConfig        `koanf:"amqp"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host"`
	Port           uint16        `koanf:"port"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	AllowedHeaders []string      `koanf:"allowed_headers"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

type RoomsConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SendBuffer    int           `koanf:"send_buffer"`
}

type PairingConfig struct {
	// ClientBaseURL is where the phone UI is served.
	ClientBaseURL    string        `koanf:"client_base_url"`
	DefaultServerURL string        `koanf:"default_server_url"`
	HostedRelayURL   string        `koanf:"hosted_relay_url"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
}

type TunnelConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Server     string        `koanf:"server"`
	Subdomain  string        `koanf:"subdomain"`
	MaxAttempt int           `koanf:"max_attempts"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

type OSCConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

type SinkConfig struct {
	// Driver is "log" or "uinput".
	Driver string `koanf:"driver"`
}

type MotionConfig struct {
	Sensitivity          float64 `koanf:"sensitivity"`
	DeadZone             float64 `koanf:"dead_zone"`
	MinVelocityThreshold float64 `koanf:"min_velocity_threshold"`
	MaxVelocity          float64 `koanf:"max_velocity"`
	CurveExponent        float64 `koanf:"curve_exponent"`
	BaseMultiplier       float64 `koanf:"base_multiplier"`
	MaxAcceleration      float64 `koanf:"max_acceleration"`
}

type RateLimiterConfig struct {
	MaxRatePerSecond int           `koanf:"maxRatePerSecond"`
	MaxBurst         int           `koanf:"maxBurst"`
	CacheTTL         time.Duration `koanf:"cacheTTL"`
	SourceHeaderKey  string        `koanf:"sourceHeaderKey"`
}

type LoggerConfig struct {
	FilePath string `koanf:"file_path"`
	Encoding string `koanf:"encoding"`
	Level    string `koanf:"level"`
	Logger   string `koanf:"logger"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

type AMQPConfig struct {
	URI      string `koanf:"uri"`
	Exchange string `koanf:"exchange"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Tunnel.MaxAttempt < 1 {
		return fmt.Errorf("tunnel.max_attempts must be at least 1, got %d", c.Tunnel.MaxAttempt)
	}
	if c.Motion.MaxVelocity <= c.Motion.MinVelocityThreshold {
		return fmt.Errorf("motion.max_velocity (%v) must exceed motion.min_velocity_threshold (%v)",
			c.Motion.MaxVelocity, c.Motion.MinVelocityThreshold)
	}
	switch c.Sink.Driver {
	case "log", "uinput":
	default:
		return fmt.Errorf("sink.driver %q not supported: supported drivers: [log, uinput]", c.Sink.Driver)
	}
	return nil
}

// Addr is the host:port the relay listens on.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c LoggerConfig) Logging() *logging.LoggerConfig {
	return &logging.LoggerConfig{
		FilePath: c.FilePath,
		Encoding: c.Encoding,
		Level:    c.Level,
		Logger:   c.Logger,
	}
}

func (c MotionConfig) Filter() motion.Config {
	return motion.Config{
		DeadZone:    c.DeadZone,
		Sensitivity: c.Sensitivity,
		Acceleration: motion.AccelerationConfig{
			MinVelocityThreshold: c.MinVelocityThreshold,
			MaxVelocity:          c.MaxVelocity,
			CurveExponent:        c.CurveExponent,
			BaseMultiplier:       c.BaseMultiplier,
			MaxAcceleration:      c.MaxAcceleration,
		},
	}
}

func (c TracingConfig) Tracing() tracing.Config {
	tc := tracing.NewDefaultConfig(c.ServiceName)
	tc.Enabled = c.Enabled
	tc.Endpoint = c.Endpoint
	tc.Insecure = c.Insecure
	return tc
}

func applyDefaults(k *koanf.Koanf) {
	// HTTP defaults
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 3001)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.allowed_origins", []string{"*"})
	setDefault(k, "http.allowed_headers", []string{"Content-Type", "Authorization"})

	// Rooms
	setDefault(k, "rooms.sweep_interval", 60*time.Second)
	setDefault(k, "rooms.send_buffer", 256)

	// Pairing
	setDefault(k, "pairing.client_base_url", "https://remotepad.app/remote")
	setDefault(k, "pairing.default_server_url", "https://relay.remotepad.app")
	setDefault(k, "pairing.hosted_relay_url", "")
	setDefault(k, "pairing.connect_timeout", 10*time.Second)

	// Tunnel
	setDefault(k, "tunnel.enabled", true)
	setDefault(k, "tunnel.server", "https://localtunnel.me")
	setDefault(k, "tunnel.subdomain", "")
	setDefault(k, "tunnel.max_attempts", 5)
	setDefault(k, "tunnel.retry_delay", 5*time.Second)

	// OSC
	setDefault(k, "osc.enabled", true)
	setDefault(k, "osc.host", "127.0.0.1")
	setDefault(k, "osc.port", 9000)

	setDefault(k, "sink.driver", "log")

	// Motion
	setDefault(k, "motion.sensitivity", 1.0)
	setDefault(k, "motion.dead_zone", 0.5)
	setDefault(k, "motion.min_velocity_threshold", 0.05)
	setDefault(k, "motion.max_velocity", 3.0)
	setDefault(k, "motion.curve_exponent", 1.5)
	setDefault(k, "motion.base_multiplier", 1.0)
	setDefault(k, "motion.max_acceleration", 3.0)

	// Rate limiter defaults
	setDefault(k, "rateLimiter.maxRatePerSecond", 1)
	setDefault(k, "rateLimiter.maxBurst", 5)
	setDefault(k, "rateLimiter.cacheTTL", 5*time.Minute)
	setDefault(k, "rateLimiter.sourceHeaderKey", "X-Forwarded-For")

	// Logger
	setDefault(k, "logger.file_path", "")
	setDefault(k, "logger.encoding", "json")
	setDefault(k, "logger.level", "info")
	setDefault(k, "logger.logger", "zap")

	// Tracing
	setDefault(k, "tracing.enabled", false)
	setDefault(k, "tracing.endpoint", "localhost:4318")
	setDefault(k, "tracing.service_name", "remotepad")
	setDefault(k, "tracing.insecure", true)

	// AMQP
	setDefault(k, "amqp.uri", "")
	setDefault(k, "amqp.exchange", "remotepad.rooms")
}

func applyEnvOverrides(k *koanf.Koanf) {
	// HTTP config from env
	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if readTimeout := env.GetInt("HTTP_READ_TIMEOUT_SECONDS", 0); readTimeout > 0 {
		k.Set("http.read_timeout", time.Duration(readTimeout)*time.Second)
	}
	if writeTimeout := env.GetInt("HTTP_WRITE_TIMEOUT_SECONDS", 0); writeTimeout > 0 {
		k.Set("http.write_timeout", time.Duration(writeTimeout)*time.Second)
	}

	if sweep := env.GetDuration("ROOM_SWEEP_INTERVAL", 0); sweep > 0 {
		k.Set("rooms.sweep_interval", sweep)
	}

	// Pairing
	if base := env.GetString("CLIENT_BASE_URL", ""); base != "" {
		k.Set("pairing.client_base_url", base)
	}
	if server := env.GetString("DEFAULT_SERVER_URL", ""); server != "" {
		k.Set("pairing.default_server_url", server)
	}
	if hosted := env.GetString("HOSTED_RELAY_URL", ""); hosted != "" {
		k.Set("pairing.hosted_relay_url", hosted)
	}

	// Tunnel
	if v, ok := lookupBool("TUNNEL_ENABLED"); ok {
		k.Set("tunnel.enabled", v)
	}
	if server := env.GetString("TUNNEL_SERVER", ""); server != "" {
		k.Set("tunnel.server", server)
	}
	if sub := env.GetString("TUNNEL_SUBDOMAIN", ""); sub != "" {
		k.Set("tunnel.subdomain", sub)
	}
	if attempts := env.GetInt("TUNNEL_MAX_ATTEMPTS", 0); attempts > 0 {
		k.Set("tunnel.max_attempts", attempts)
	}
	if delay := env.GetDuration("TUNNEL_RETRY_DELAY", 0); delay > 0 {
		k.Set("tunnel.retry_delay", delay)
	}

	// OSC
	if v, ok := lookupBool("OSC_ENABLED"); ok {
		k.Set("osc.enabled", v)
	}
	if host := env.GetString("OSC_HOST", ""); host != "" {
		k.Set("osc.host", host)
	}
	if port := env.GetInt("OSC_PORT", 0); port > 0 {
		k.Set("osc.port", port)
	}

	if driver := env.GetString("SINK_DRIVER", ""); driver != "" {
		k.Set("sink.driver", driver)
	}

	// Rate limiter config from env
	if maxRate := env.GetInt("RATE_LIMIT_MAX_RATE_PER_SECOND", 0); maxRate > 0 {
		k.Set("rateLimiter.maxRatePerSecond", maxRate)
	}
	if maxBurst := env.GetInt("RATE_LIMIT_MAX_BURST", 0); maxBurst > 0 {
		k.Set("rateLimiter.maxBurst", maxBurst)
	}
	if cacheTTL := env.GetInt("RATE_LIMIT_CACHE_TTL_MINUTES", 0); cacheTTL > 0 {
		k.Set("rateLimiter.cacheTTL", time.Duration(cacheTTL)*time.Minute)
	}
	if sourceKey := env.GetString("RATE_LIMIT_SOURCE_HEADER_KEY", ""); sourceKey != "" {
		k.Set("rateLimiter.sourceHeaderKey", sourceKey)
	}

	// Logger
	if p := env.GetString("LOGGER_FILE_PATH", ""); p != "" {
		k.Set("logger.file_path", p)
	}
	if enc := env.GetString("LOGGER_ENCODING", ""); enc != "" {
		k.Set("logger.encoding", enc)
	}
	if lvl := env.GetString("LOGGER_LEVEL", ""); lvl != "" {
		k.Set("logger.level", lvl)
	}
	if l := env.GetString("LOGGER_LOGGER", ""); l != "" {
		k.Set("logger.logger", l)
	}

	// Tracing
	if v, ok := lookupBool("TRACING_ENABLED"); ok {
		k.Set("tracing.enabled", v)
	}
	if ep := env.GetString("OTEL_EXPORTER_OTLP_ENDPOINT", ""); ep != "" {
		k.Set("tracing.endpoint", ep)
	}

	// AMQP
	if uri := env.GetString("AMQP_URI", ""); uri != "" {
		k.Set("amqp.uri", uri)
	}
}

func lookupBool(key string) (bool, bool) {
	if env.GetString(key, "") == "" {
		return false, false
	}
	return env.GetBool(key, false), true
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
