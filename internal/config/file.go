package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// File is the on-disk and environment form of Options.
//
// TOML example:
//
//	command = "node"
//	args = ["-e", "require('@modelcontextprotocol/server-google-maps')"]
//	credential_var = "GOOGLE_MAPS_API_KEY"
//	terminate_timeout = "5s"
//
//	[env]
//	NODE_ENV = "production"
type File struct {
	Command          string            `toml:"command"           yaml:"command"           env:"SIDECAR_COMMAND"`
	Args             []string          `toml:"args"              yaml:"args"              env:"SIDECAR_ARGS"`
	Env              map[string]string `toml:"env"               yaml:"env"`
	CredentialVar    string            `toml:"credential_var"    yaml:"credential_var"    env:"SIDECAR_CREDENTIAL_VAR"`
	Cwd              string            `toml:"cwd"               yaml:"cwd"               env:"SIDECAR_CWD"`
	Protocol         string            `toml:"protocol"          yaml:"protocol"          env:"SIDECAR_PROTOCOL"`
	ProtocolVersion  string            `toml:"protocol_version"  yaml:"protocol_version"  env:"SIDECAR_PROTOCOL_VERSION"`
	Correlation      string            `toml:"correlation"       yaml:"correlation"       env:"SIDECAR_CORRELATION"`
	HandshakeTimeout string            `toml:"handshake_timeout" yaml:"handshake_timeout" env:"SIDECAR_HANDSHAKE_TIMEOUT"`
	RequestTimeout   string            `toml:"request_timeout"   yaml:"request_timeout"   env:"SIDECAR_REQUEST_TIMEOUT"`
	TerminateTimeout string            `toml:"terminate_timeout" yaml:"terminate_timeout" env:"SIDECAR_TERMINATE_TIMEOUT"`
}

// LoadFile reads a TOML or YAML config file, chosen by extension.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f File

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &f, nil
}

// FromEnv reads SIDECAR_* environment variables. SIDECAR_ARGS is split on ';'.
// It returns an empty File when none are set.
func FromEnv() (*File, error) {
	var f File

	if err := envdecode.Decode(&f); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	return &f, nil
}

// Apply overlays the non-empty fields of f onto o.
func (f *File) Apply(o *Options) error {
	if err := f.validate(); err != nil {
		return err
	}

	setString(&o.Command, f.Command)
	setString(&o.CredentialVar, f.CredentialVar)
	setString(&o.Cwd, f.Cwd)
	setString(&o.Protocol, f.Protocol)
	setString(&o.ProtocolVersion, f.ProtocolVersion)

	if len(f.Args) > 0 {
		o.Args = append([]string(nil), f.Args...)
	}

	if len(f.Env) > 0 {
		if o.Env == nil {
			o.Env = make(map[string]string, len(f.Env))
		}

		for k, v := range f.Env {
			o.Env[k] = v
		}
	}

	if f.Correlation != "" {
		o.Correlation = Correlation(f.Correlation)
	}

	// Durations were checked by validate.
	setDuration(&o.HandshakeTimeout, f.HandshakeTimeout)
	setDuration(&o.RequestTimeout, f.RequestTimeout)
	setDuration(&o.TerminateTimeout, f.TerminateTimeout)

	return nil
}

func (f *File) validate() error {
	if f.Correlation != "" && !Correlation(f.Correlation).Valid() {
		return fmt.Errorf("correlation must be %q or %q, got %q",
			CorrelationOrdered, CorrelationID, f.Correlation)
	}

	durations := map[string]string{
		"handshake_timeout": f.HandshakeTimeout,
		"request_timeout":   f.RequestTimeout,
		"terminate_timeout": f.TerminateTimeout,
	}

	for name, value := range durations {
		if value == "" {
			continue
		}

		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}

	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
	}
}
