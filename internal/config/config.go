package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings a plug-power invocation runs with.
type Config struct {
	// Host is the plug address used when --host is not given.
	Host string `yaml:"host"`
	// Timeout bounds dialing and each request to the plug.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the settings file looked up when --config is not given.
	DefaultConfigFilename = "plug-power-settings.yaml"

	// DefaultHost is the factory address of the plug powering the board.
	DefaultHost = "192.168.4.96"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidHost is returned when the host cannot be a network address.
	errInvalidHost = errors.New("invalid host")
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Host:    DefaultHost,
		Timeout: DefaultTimeout,
	}
}

// Load reads settings from path and fills in defaults.
// An empty path means DefaultConfigFilename, which may be absent.
// An explicit path must exist.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills in defaults and checks the host format.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	settings.Host = strings.TrimSpace(settings.Host)
	if settings.Host == "" {
		settings.Host = DefaultHost
	}

	if err := ValidateHost(settings.Host); err != nil {
		return err
	}

	// Set default timeout if not specified.
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	return nil
}

// ValidateHost checks that host is a hostname or IP, optionally with a port.
func ValidateHost(host string) error {
	if host == "" || strings.ContainsAny(host, " \t\r\n/") {
		return fmt.Errorf("%w: %q", errInvalidHost, host)
	}

	h, port, err := net.SplitHostPort(host)
	if err != nil {
		// No port: a bare hostname or IP literal.
		return nil
	}

	if h == "" {
		return fmt.Errorf("%w: %q has no hostname", errInvalidHost, host)
	}

	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("%w: %q has a bad port", errInvalidHost, host)
	}

	return nil
}
