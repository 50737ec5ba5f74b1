// Package config provides configuration management for the unbundle
// development server using Viper for flexible configuration loading from
// files, environment variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the UNBUNDLE_ prefix. It manages server settings, the
// serving roots (public directory, fallback document, source-root mounts),
// and the external typecheck process.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Serve     ServeConfig     `yaml:"serve" mapstructure:"serve"`
	Typecheck TypecheckConfig `yaml:"typecheck" mapstructure:"typecheck"`
}

type ServerConfig struct {
	Port int    `yaml:"port" mapstructure:"port"`
	Host string `yaml:"host" mapstructure:"host"`
	Open bool   `yaml:"open" mapstructure:"open"`
}

// ServeConfig describes where request paths resolve to on disk.
type ServeConfig struct {
	// Root is the working directory the server treats as the project root.
	Root string `yaml:"root" mapstructure:"root"`
	// PublicDir holds static assets and the fallback document, relative to Root.
	PublicDir string `yaml:"public_dir" mapstructure:"public_dir"`
	// Fallback is the SPA fallback document inside PublicDir.
	Fallback string `yaml:"fallback" mapstructure:"fallback"`
	// ModulesDir holds pre-resolved third-party modules served verbatim.
	ModulesDir string `yaml:"modules_dir" mapstructure:"modules_dir"`
	// Mounts map request prefixes onto source directories, in order.
	Mounts []Mount `yaml:"mounts" mapstructure:"mounts"`
}

// Mount translates a request path prefix into a directory under Root.
// An empty RewriteTo keeps the prefix as the directory path.
type Mount struct {
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	RewriteTo string `yaml:"rewrite_to" mapstructure:"rewrite_to"`
}

// Dir returns the directory path a mounted request resolves under.
func (m Mount) Dir() string {
	if m.RewriteTo != "" {
		return m.RewriteTo
	}
	return m.Prefix
}

type TypecheckConfig struct {
	// Command is the external watch-mode typechecker invocation, split on
	// whitespace. Empty disables typechecking.
	Command string `yaml:"command" mapstructure:"command"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Apply defaults for serving roots only if not explicitly set
	if config.Serve.Root == "" {
		config.Serve.Root = "."
	}
	if config.Serve.PublicDir == "" {
		config.Serve.PublicDir = "public"
	}
	if config.Serve.Fallback == "" {
		config.Serve.Fallback = "index.html"
	}
	if config.Serve.ModulesDir == "" {
		config.Serve.ModulesDir = "web_modules"
	}

	// Handle mounts set via viper (workaround for viper slice handling)
	if viper.IsSet("serve.mounts") && len(config.Serve.Mounts) == 0 {
		var mounts []Mount
		if err := viper.UnmarshalKey("serve.mounts", &mounts); err != nil {
			return nil, fmt.Errorf("invalid serve.mounts: %w", err)
		}
		config.Serve.Mounts = mounts
	}
	if len(config.Serve.Mounts) == 0 {
		config.Serve.Mounts = []Mount{{Prefix: "/src/"}}
	}

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 && !viper.IsSet("server.port") {
		config.Server.Port = 8080
	}

	// Validate configuration values
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateServeConfig(&config.Serve); err != nil {
		return fmt.Errorf("serve config: %w", err)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validateServeConfig validates the serving roots and mount table
func validateServeConfig(config *ServeConfig) error {
	for _, path := range []string{config.PublicDir, config.Fallback, config.ModulesDir} {
		if err := validatePath(path); err != nil {
			return err
		}
	}

	for _, mount := range config.Mounts {
		if !strings.HasPrefix(mount.Prefix, "/") {
			return fmt.Errorf("mount prefix %q must start with /", mount.Prefix)
		}
		if mount.RewriteTo != "" && !strings.HasPrefix(mount.RewriteTo, "/") {
			return fmt.Errorf("mount rewrite %q must start with /", mount.RewriteTo)
		}
	}

	return nil
}

// validatePath validates a configured relative path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative to the project root: %s", path)
	}

	return nil
}
