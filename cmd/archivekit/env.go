package main

import (
	"context"
	"fmt"

	v1 "github.com/archivekit/archivekit/apis/v1"
	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/remote"
	"github.com/archivekit/archivekit/internal/setup"
	"github.com/archivekit/archivekit/pkg/archive"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// env is what every archive command needs, built from the global flags.
type env struct {
	logger     *zap.Logger
	config     v1.Config
	resolver   *engine.Resolver
	downloader *remote.Downloader
}

func loadConfig(command *cli.Command) (v1.Config, error) {
	root := command.Root()
	cfg, err := setup.LoadConfig(root.String("config"))
	if err != nil {
		return v1.Config{}, err
	}
	if err := setup.ExpandConfig(&cfg, root.StringSlice("allowed-env")); err != nil {
		return v1.Config{}, err
	}
	return cfg, nil
}

func newEnv(ctx context.Context, command *cli.Command) (*env, error) {
	logger := getLogger(ctx)

	cfg, err := loadConfig(command)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	resolver, err := setup.BuildResolver(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build drivers: %w", err)
	}
	downloader, err := setup.BuildDownloader(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build downloader: %w", err)
	}

	return &env{
		logger:     logger,
		config:     cfg,
		resolver:   resolver,
		downloader: downloader,
	}, nil
}

// open opens a local path or an http(s) URL.
func (e *env) open(ctx context.Context, location, password string, extra ...archive.Option) (*archive.Archive, error) {
	opts := append([]archive.Option{
		archive.WithResolver(e.resolver),
		archive.WithLogger(e.logger),
		archive.WithPassword(password),
		archive.WithDownloader(e.downloader),
	}, extra...)

	if remote.IsURL(location) {
		return archive.OpenURL(ctx, location, opts...)
	}
	return archive.Open(ctx, location, opts...)
}

func (e *env) createOptions(ctx context.Context, extra ...archive.CreateOption) []archive.CreateOption {
	return append([]archive.CreateOption{
		archive.WithCreateResolver(e.resolver),
		archive.WithCreateLogger(e.logger),
		archive.Progress(progressPrinter(ctx)),
	}, extra...)
}

// closeArchive closes a and reports the failure through errp when nothing
// failed before.
func closeArchive(a *archive.Archive, errp *error) {
	if err := a.Close(); err != nil && *errp == nil {
		*errp = err
	}
}
