package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/loykin/procbuilder/internal/builder"
	"github.com/loykin/procbuilder/internal/env"
	"github.com/loykin/procbuilder/internal/logger"
)

// FileConfig is the structure of an invocation file (TOML, YAML or JSON).
//
//	name = "php-info"
//	prefix = ["/usr/bin/php"]
//	args = ["-i"]
//	env = ["APP_ENV=prod"]
//	env_files = [".env"]
//	inherit_env = true
//	timeout = "30s"
//	work_dir = "/srv/app"
type FileConfig struct {
	Name       string        `mapstructure:"name" validate:"omitempty,max=128"`
	Prefix     []string      `mapstructure:"prefix"`
	Args       []string      `mapstructure:"args"`
	Env        []string      `mapstructure:"env" validate:"dive,contains=="`
	EnvFiles   []string      `mapstructure:"env_files" validate:"dive,required"`
	InheritEnv bool          `mapstructure:"inherit_env"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	WorkDir    string        `mapstructure:"work_dir"`
	Log        logger.Config `mapstructure:"log"`
	History    HistoryConfig `mapstructure:"history"`
	Server     ServerConfig  `mapstructure:"server"`
}

// HistoryConfig selects the launch history sink by DSN (see history/factory).
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen   string `mapstructure:"listen" validate:"omitempty,hostname_port"`
	BasePath string `mapstructure:"base_path"`
	Token    string `mapstructure:"token"` // bearer token for /render and /run
}

var validate = validator.New()

// Defaults returns a FileConfig with the values used for keys missing from a file.
func Defaults() FileConfig {
	return FileConfig{
		InheritEnv: true,
		Log:        logger.Config{Level: "info", Format: logger.FormatText},
		Server:     ServerConfig{Listen: "127.0.0.1:8080", BasePath: "/api"},
	}
}

// Load reads the invocation file at path. The format follows the extension.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	d := Defaults()
	v.SetDefault("inherit_env", d.InheritEnv)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := fc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &fc, nil
}

// Validate checks field constraints and that the file names something to run.
func (fc *FileConfig) Validate() error {
	if err := validate.Struct(fc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if len(fc.Prefix)+len(fc.Args) == 0 {
		return errors.New("prefix or args required")
	}
	switch strings.ToLower(fc.Log.Format) {
	case "", logger.FormatText, logger.FormatJSON, logger.FormatColor:
	default:
		return fmt.Errorf("unknown log format %q", fc.Log.Format)
	}
	return nil
}

// Builder turns the file into a Builder. Variables from env_files are read
// now, in order, and the env list overrides them; both become explicit entries.
func (fc *FileConfig) Builder() (*builder.Builder, error) {
	b := builder.New(fc.Args...).
		SetPrefix(fc.Prefix...).
		SetName(fc.Name).
		SetWorkDir(fc.WorkDir).
		InheritEnvironmentVariables(fc.InheritEnv)

	explicit, err := env.ReadFiles(fc.EnvFiles...)
	if err != nil {
		return nil, fmt.Errorf("read env files: %w", err)
	}
	for k, v := range env.Parse(fc.Env) {
		explicit[k] = v
	}
	for k, v := range explicit {
		b.SetEnv(k, v)
	}
	if fc.Timeout > 0 {
		if _, err := b.SetTimeout(fc.Timeout); err != nil {
			return nil, err
		}
	}
	return b, nil
}
