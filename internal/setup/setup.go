// Package setup turns a configuration document into the registry, resolver,
// downloader and sinks the rest of archivekit works with.
package setup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	v1 "github.com/archivekit/archivekit/apis/v1"
	"github.com/archivekit/archivekit/internal/drivers/compressed"
	"github.com/archivekit/archivekit/internal/drivers/external"
	"github.com/archivekit/archivekit/internal/drivers/isoimage"
	"github.com/archivekit/archivekit/internal/drivers/rarfile"
	"github.com/archivekit/archivekit/internal/drivers/sevenz"
	"github.com/archivekit/archivekit/internal/drivers/tarball"
	"github.com/archivekit/archivekit/internal/drivers/zipfile"
	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/sinks"
	"github.com/archivekit/archivekit/internal/remote"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const EnvPrefix = "ARCHIVEKIT"

// DefaultOrder is the driver priority when the configuration does not
// override it. Native drivers come before command-line ones.
var DefaultOrder = []string{
	zipfile.Name,
	tarball.Name,
	sevenz.Name,
	rarfile.Name,
	compressed.Name,
	isoimage.Name,
	external.SevenZipName,
	external.CabextractName,
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("drivers.timeout", external.DefaultTimeout.String())
	v.SetDefault("drivers.binaries.seven_zip", "")
	v.SetDefault("drivers.binaries.cabextract", "")
	v.SetDefault("drivers.binaries.gzip", "")
	v.SetDefault("remote.timeout", remote.DefaultTimeout.String())
	v.SetDefault("remote.user_agent", remote.DefaultUserAgent)
	v.SetDefault("remote.insecure", false)
	return v
}

// ParseConfig reads a YAML configuration document. ARCHIVEKIT_* environment
// variables override scalar settings, e.g. ARCHIVEKIT_DRIVERS_TIMEOUT.
func ParseConfig(data []byte) (v1.Config, error) {
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return v1.Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(v)
}

// DefaultConfig is the configuration used when no file is present.
func DefaultConfig() (v1.Config, error) {
	return decode(newViper())
}

func decode(v *viper.Viper) (v1.Config, error) {
	var cfg v1.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return v1.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := defaultValidator.Struct(cfg); err != nil {
		return v1.Config{}, fmt.Errorf("failed to validate config: %w", err)
	}
	if _, err := parseDuration(cfg.Drivers.Timeout, external.DefaultTimeout); err != nil {
		return v1.Config{}, fmt.Errorf("invalid drivers.timeout: %w", err)
	}
	if _, err := parseDuration(cfg.Remote.Timeout, remote.DefaultTimeout); err != nil {
		return v1.Config{}, fmt.Errorf("invalid remote.timeout: %w", err)
	}
	return cfg, nil
}

// DefaultConfigPath is $HOME/.config/archivekit/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "archivekit", "config.yaml")
}

// LoadConfig reads the configuration at path, or the default location when
// path is empty. A missing default file yields the defaults.
func LoadConfig(path string) (v1.Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path == "" {
		return DefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return DefaultConfig()
		}
		return v1.Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return v1.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ExpandConfig expands ${VAR} references in template fields using only the
// allowed environment variables.
func ExpandConfig(cfg *v1.Config, allowedEnv []string) error {
	if err := ExpandTemplates(cfg, AllowedVariables(allowedEnv)); err != nil {
		return fmt.Errorf("failed to expand config: %w", err)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// DriverOrder returns the registration order: configured names first, then
// the remaining defaults, minus disabled drivers.
func DriverOrder(spec v1.DriversSpec) []string {
	order := make([]string, 0, len(DefaultOrder))
	for _, name := range slices.Concat(spec.Order, DefaultOrder) {
		if slices.Contains(order, name) || slices.Contains(spec.Disabled, name) {
			continue
		}
		order = append(order, name)
	}
	return order
}

// BuildRegistry registers every enabled driver in priority order.
func BuildRegistry(cfg v1.Config, logger *zap.Logger) (*engine.Registry, error) {
	timeout, err := parseDuration(cfg.Drivers.Timeout, external.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid drivers.timeout: %w", err)
	}
	bins := cfg.Drivers.Binaries

	var tarOpts []tarball.Option
	if bins.Gzip != "" {
		tarOpts = append(tarOpts, tarball.WithGzipBinary(bins.Gzip))
	}
	extOpts := func(binary string) []external.Option {
		opts := []external.Option{external.WithTimeout(timeout), external.WithLogger(logger)}
		if binary != "" {
			opts = append(opts, external.WithBinary(binary))
		}
		return opts
	}

	constructors := map[string]func() engine.DriverKind{
		zipfile.Name:            func() engine.DriverKind { return zipfile.New() },
		tarball.Name:            func() engine.DriverKind { return tarball.New(tarOpts...) },
		sevenz.Name:             func() engine.DriverKind { return sevenz.New() },
		rarfile.Name:            func() engine.DriverKind { return rarfile.New() },
		compressed.Name:         func() engine.DriverKind { return compressed.New() },
		isoimage.Name:           func() engine.DriverKind { return isoimage.New() },
		external.SevenZipName:   func() engine.DriverKind { return external.NewSevenZip(extOpts(bins.SevenZip)...) },
		external.CabextractName: func() engine.DriverKind { return external.NewCabextract(extOpts(bins.Cabextract)...) },
	}

	registry := engine.NewRegistry(logger.Named("registry"))
	for _, name := range DriverOrder(cfg.Drivers) {
		build, ok := constructors[name]
		if !ok {
			return nil, fmt.Errorf("unknown driver %q", name)
		}
		if err := registry.Register(build()); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// BuildResolver builds the registry and wraps it in a resolver.
func BuildResolver(cfg v1.Config, logger *zap.Logger) (*engine.Resolver, error) {
	registry, err := BuildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine.NewResolver(registry, logger.Named("resolver")), nil
}

// BuildDownloader builds the http(s) downloader from the remote settings.
func BuildDownloader(cfg v1.Config, logger *zap.Logger) (*remote.Downloader, error) {
	timeout, err := parseDuration(cfg.Remote.Timeout, remote.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid remote.timeout: %w", err)
	}
	headers := map[string]string{}
	for k, v := range cfg.Remote.Headers {
		headers[k] = v
	}
	if cfg.Remote.UserAgent != "" {
		headers["User-Agent"] = cfg.Remote.UserAgent
	}
	return remote.New(remote.Config{
		Headers:  headers,
		Timeout:  timeout,
		Insecure: cfg.Remote.Insecure,
	}, remote.WithLogger(logger.Named("remote"))), nil
}

// BuildSink returns the extraction sink for target: "s3://bucket/prefix"
// uploads through the configured S3 settings, anything else is a local
// directory configured with fsOpts.
func BuildSink(ctx context.Context, cfg v1.Config, target string, fsOpts ...sinks.FilesystemOption) (engine.Sink, error) {
	if !strings.HasPrefix(target, "s3://") {
		sink, err := sinks.NewFilesystemSinkFromPath(target, fsOpts...)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sink target '%s': %w", target, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("s3 target %q has no bucket", target)
	}

	s3cfg := sinks.S3Config{
		Bucket: u.Host,
		Prefix: strings.TrimPrefix(u.Path, "/"),
	}
	if spec := cfg.Sinks.S3; spec != nil {
		s3cfg.Metadata = spec.Metadata
		s3cfg.Region = spec.Region
		s3cfg.Endpoint = spec.Endpoint
		s3cfg.ForcePathStyle = spec.ForcePathStyle
		if spec.Credentials != nil {
			s3cfg.AccessKeyID = spec.Credentials.AccessKeyID
			s3cfg.SecretAccessKey = spec.Credentials.SecretAccessKey
		}
		if s3cfg.Prefix == "" && spec.Bucket == s3cfg.Bucket {
			s3cfg.Prefix = spec.Prefix
		}
	}
	sink, err := sinks.NewS3Sink(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return sink, nil
}
