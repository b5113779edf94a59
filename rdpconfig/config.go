// Package rdpconfig holds the layered application configuration for
// callers embedding the RDP core: an optional on-disk YAML profile,
// overridden by environment variables, overridden by command-line
// options.
package rdpconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// globalConfig stores the configuration loaded with command-line overrides
// This allows other packages to access the same configuration that was loaded by the server
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	RDP      RDPConfig      `json:"rdp" yaml:"rdp"`
	Client   ClientConfig   `json:"client" yaml:"client"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// LoadOptions holds command-line override options
type LoadOptions struct {
	Host              string
	Port              string
	LogLevel          string
	ConfigFile        string
	SkipTLSValidation bool
	TLSServerName     string
	UseNLA            bool
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `json:"port" yaml:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `json:"idleTimeout" yaml:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// RDPConfig holds RDP-specific configuration
type RDPConfig struct {
	DefaultWidth  int           `json:"defaultWidth" yaml:"defaultWidth" env:"RDP_DEFAULT_WIDTH" default:"1024"`
	DefaultHeight int           `json:"defaultHeight" yaml:"defaultHeight" env:"RDP_DEFAULT_HEIGHT" default:"768"`
	MaxWidth      int           `json:"maxWidth" yaml:"maxWidth" env:"RDP_MAX_WIDTH" default:"3840"`
	MaxHeight     int           `json:"maxHeight" yaml:"maxHeight" env:"RDP_MAX_HEIGHT" default:"2160"`
	BufferSize    int           `json:"bufferSize" yaml:"bufferSize" env:"RDP_BUFFER_SIZE" default:"65536"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" env:"RDP_TIMEOUT" default:"10s"`
}

// ClientConfig holds the per-session connection defaults the gateway
// maps onto a connector.Config: the Configuration surface of the
// connection sequence, minus the credential secrets that only ever
// arrive per-request.
type ClientConfig struct {
	ClientName          string   `json:"clientName" yaml:"clientName" env:"CLIENT_NAME" default:"rdpcore"`
	ColorDepth          int      `json:"colorDepth" yaml:"colorDepth" env:"CLIENT_COLOR_DEPTH" default:"32"`
	Compression         bool     `json:"compression" yaml:"compression" env:"CLIENT_COMPRESSION" default:"true"`
	CompressionLevel    int      `json:"compressionLevel" yaml:"compressionLevel" env:"CLIENT_COMPRESSION_LEVEL" default:"1"`
	Codecs              []string `json:"codecs" yaml:"codecs" env:"CLIENT_CODECS" default:"remotefx,nscodec"`
	Channels            []string `json:"channels" yaml:"channels" env:"CLIENT_CHANNELS" default:"cliprdr,rdpsnd,drdynvc"`
	EnableServerPointer bool     `json:"enableServerPointer" yaml:"enableServerPointer" env:"CLIENT_SERVER_POINTER" default:"true"`
	EnableAudioPlayback bool     `json:"enableAudioPlayback" yaml:"enableAudioPlayback" env:"CLIENT_AUDIO" default:"true"`
	EnableClipboard     bool     `json:"enableClipboard" yaml:"enableClipboard" env:"CLIENT_CLIPBOARD" default:"true"`
	EnableDeviceRedir   bool     `json:"enableDeviceRedir" yaml:"enableDeviceRedir" env:"CLIENT_DEVICE_REDIR" default:"false"`
	PreConnectionBlob   string   `json:"preConnectionBlob" yaml:"preConnectionBlob" env:"CLIENT_PCB" default:""`
	Multitransport      bool     `json:"multitransport" yaml:"multitransport" env:"CLIENT_MULTITRANSPORT" default:"false"`
	Timezone            string   `json:"timezone" yaml:"timezone" env:"CLIENT_TIMEZONE" default:""`
	AlternateShell      string   `json:"alternateShell" yaml:"alternateShell" env:"CLIENT_ALTERNATE_SHELL" default:""`
	WorkDir             string   `json:"workDir" yaml:"workDir" env:"CLIENT_WORK_DIR" default:""`
	Autologon           bool     `json:"autologon" yaml:"autologon" env:"CLIENT_AUTOLOGON" default:"false"`
	KdcProxyURL         string   `json:"kdcProxyUrl" yaml:"kdcProxyUrl" env:"CLIENT_KDC_PROXY_URL" default:""`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins     []string `json:"allowedOrigins" yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" default:""`
	MaxConnections     int      `json:"maxConnections" yaml:"maxConnections" env:"MAX_CONNECTIONS" default:"100"`
	EnableRateLimit    bool     `json:"enableRateLimit" yaml:"enableRateLimit" env:"ENABLE_RATE_LIMIT" default:"true"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE" default:"60"`
	EnableTLS          bool     `json:"enableTLS" yaml:"enableTLS" env:"ENABLE_TLS" default:"false"`
	TLSCertFile        string   `json:"tlsCertFile" yaml:"tlsCertFile" env:"TLS_CERT_FILE" default:""`
	TLSKeyFile         string   `json:"tlsKeyFile" yaml:"tlsKeyFile" env:"TLS_KEY_FILE" default:""`
	MinTLSVersion      string   `json:"minTLSVersion" yaml:"minTLSVersion" env:"MIN_TLS_VERSION" default:"1.2"`
	SkipTLSValidation  bool     `json:"skipTLSValidation" yaml:"skipTLSValidation" env:"SKIP_TLS_VALIDATION" default:"false"`
	TLSServerName      string   `json:"tlsServerName" yaml:"tlsServerName" env:"TLS_SERVER_NAME" default:""`
	UseNLA             bool     `json:"useNLA" yaml:"useNLA" env:"USE_NLA" default:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format       string `json:"format" yaml:"format" env:"LOG_FORMAT" default:"text"`
	EnableCaller bool   `json:"enableCaller" yaml:"enableCaller" env:"LOG_ENABLE_CALLER" default:"false"`
	File         string `json:"file" yaml:"file" env:"LOG_FILE" default:""`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration in precedence order: built-in
// defaults, then the optional YAML profile file, then environment
// variables, then command-line overrides.
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	base := defaultConfig()

	if err := applyProfile(&base, opts.ConfigFile); err != nil {
		return nil, fmt.Errorf("config profile: %w", err)
	}

	config := &base

	// Server config
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", base.Server.Host)
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", base.Server.Port)
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", base.Server.ReadTimeout)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", base.Server.WriteTimeout)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", base.Server.IdleTimeout)

	// RDP config
	config.RDP.DefaultWidth = getIntWithDefault("RDP_DEFAULT_WIDTH", base.RDP.DefaultWidth)
	config.RDP.DefaultHeight = getIntWithDefault("RDP_DEFAULT_HEIGHT", base.RDP.DefaultHeight)
	config.RDP.MaxWidth = getIntWithDefault("RDP_MAX_WIDTH", base.RDP.MaxWidth)
	config.RDP.MaxHeight = getIntWithDefault("RDP_MAX_HEIGHT", base.RDP.MaxHeight)
	config.RDP.BufferSize = getIntWithDefault("RDP_BUFFER_SIZE", base.RDP.BufferSize)
	config.RDP.Timeout = getDurationWithDefault("RDP_TIMEOUT", base.RDP.Timeout)

	// Client connection defaults
	config.Client.ClientName = getEnvWithDefault("CLIENT_NAME", base.Client.ClientName)
	config.Client.ColorDepth = getIntWithDefault("CLIENT_COLOR_DEPTH", base.Client.ColorDepth)
	config.Client.Compression = getBoolWithDefault("CLIENT_COMPRESSION", base.Client.Compression)
	config.Client.CompressionLevel = getIntWithDefault("CLIENT_COMPRESSION_LEVEL", base.Client.CompressionLevel)
	config.Client.Codecs = getStringSliceWithDefault("CLIENT_CODECS", base.Client.Codecs)
	config.Client.Channels = getStringSliceWithDefault("CLIENT_CHANNELS", base.Client.Channels)
	config.Client.EnableServerPointer = getBoolWithDefault("CLIENT_SERVER_POINTER", base.Client.EnableServerPointer)
	config.Client.EnableAudioPlayback = getBoolWithDefault("CLIENT_AUDIO", base.Client.EnableAudioPlayback)
	config.Client.EnableClipboard = getBoolWithDefault("CLIENT_CLIPBOARD", base.Client.EnableClipboard)
	config.Client.EnableDeviceRedir = getBoolWithDefault("CLIENT_DEVICE_REDIR", base.Client.EnableDeviceRedir)
	config.Client.PreConnectionBlob = getEnvWithDefault("CLIENT_PCB", base.Client.PreConnectionBlob)
	config.Client.Multitransport = getBoolWithDefault("CLIENT_MULTITRANSPORT", base.Client.Multitransport)
	config.Client.Timezone = getEnvWithDefault("CLIENT_TIMEZONE", base.Client.Timezone)
	config.Client.AlternateShell = getEnvWithDefault("CLIENT_ALTERNATE_SHELL", base.Client.AlternateShell)
	config.Client.WorkDir = getEnvWithDefault("CLIENT_WORK_DIR", base.Client.WorkDir)
	config.Client.Autologon = getBoolWithDefault("CLIENT_AUTOLOGON", base.Client.Autologon)
	config.Client.KdcProxyURL = getEnvWithDefault("CLIENT_KDC_PROXY_URL", base.Client.KdcProxyURL)

	// Security config
	config.Security.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", base.Security.AllowedOrigins)
	config.Security.MaxConnections = getIntWithDefault("MAX_CONNECTIONS", base.Security.MaxConnections)
	config.Security.EnableRateLimit = getBoolWithDefault("ENABLE_RATE_LIMIT", base.Security.EnableRateLimit)
	config.Security.RateLimitPerMinute = getIntWithDefault("RATE_LIMIT_PER_MINUTE", base.Security.RateLimitPerMinute)
	config.Security.EnableTLS = getBoolWithDefault("ENABLE_TLS", base.Security.EnableTLS)
	config.Security.TLSCertFile = getEnvWithDefault("TLS_CERT_FILE", base.Security.TLSCertFile)
	config.Security.TLSKeyFile = getEnvWithDefault("TLS_KEY_FILE", base.Security.TLSKeyFile)
	config.Security.MinTLSVersion = getEnvWithDefault("MIN_TLS_VERSION", base.Security.MinTLSVersion)
	config.Security.SkipTLSValidation = getBoolWithDefault("SKIP_TLS_VALIDATION", base.Security.SkipTLSValidation) || opts.SkipTLSValidation
	config.Security.TLSServerName = getOverrideOrEnv(opts.TLSServerName, "TLS_SERVER_NAME", base.Security.TLSServerName)
	// NLA enabled by default for security; set USE_NLA=false to disable
	config.Security.UseNLA = getBoolWithDefault("USE_NLA", base.Security.UseNLA)
	if opts.UseNLA {
		config.Security.UseNLA = true
	}

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", base.Logging.Level)
	config.Logging.Format = getEnvWithDefault("LOG_FORMAT", base.Logging.Format)
	config.Logging.EnableCaller = getBoolWithDefault("LOG_ENABLE_CALLER", base.Logging.EnableCaller)
	config.Logging.File = getEnvWithDefault("LOG_FILE", base.Logging.File)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store the configuration globally so other packages can access it
	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// defaultConfig returns the built-in defaults, the lowest layer of the
// precedence chain.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		RDP: RDPConfig{
			DefaultWidth:  1024,
			DefaultHeight: 768,
			MaxWidth:      3840,
			MaxHeight:     2160,
			BufferSize:    65536,
			Timeout:       10 * time.Second,
		},
		Client: ClientConfig{
			ClientName:          "rdpcore",
			ColorDepth:          32,
			Compression:         true,
			CompressionLevel:    1,
			Codecs:              []string{"remotefx", "nscodec"},
			Channels:            []string{"cliprdr", "rdpsnd", "drdynvc"},
			EnableServerPointer: true,
			EnableAudioPlayback: true,
			EnableClipboard:     true,
		},
		Security: SecurityConfig{
			AllowedOrigins:     []string{},
			MaxConnections:     100,
			EnableRateLimit:    true,
			RateLimitPerMinute: 60,
			MinTLSVersion:      "1.2",
			UseNLA:             true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyProfile merges the optional YAML profile file over the defaults.
// The path comes from the command line or the RDPCORE_PROFILE
// environment variable; a missing explicit file is an error, no
// configured file at all is not.
func applyProfile(config *Config, path string) error {
	if path == "" {
		path = os.Getenv("RDPCORE_PROFILE")
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// GetGlobalConfig returns the globally stored configuration
// This should be used by packages that need access to the configuration
// loaded by the server with command-line overrides
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	// Validate RDP config
	if c.RDP.DefaultWidth <= 0 || c.RDP.DefaultHeight <= 0 {
		return fmt.Errorf("default dimensions must be positive")
	}

	if c.RDP.MaxWidth < c.RDP.DefaultWidth || c.RDP.MaxHeight < c.RDP.DefaultHeight {
		return fmt.Errorf("max dimensions must be >= default dimensions")
	}

	if c.RDP.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}

	// Validate client config
	switch c.Client.ColorDepth {
	case 15, 16, 24, 32:
	default:
		return fmt.Errorf("invalid color depth: %d", c.Client.ColorDepth)
	}

	if c.Client.CompressionLevel < 0 || c.Client.CompressionLevel > 3 {
		return fmt.Errorf("compression level must be 0-3")
	}

	// Validate security config
	if c.Security.EnableTLS {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS certificate and key files must be specified when TLS is enabled")
		}

		if _, err := os.Stat(c.Security.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", c.Security.TLSCertFile)
		}

		if _, err := os.Stat(c.Security.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", c.Security.TLSKeyFile)
		}
	}

	if c.Security.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}

	if c.Security.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit per minute must be positive")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
