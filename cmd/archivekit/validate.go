package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/archivekit/archivekit/internal/setup"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Validate a configuration file",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "config",
			UsageText: "The configuration file to validate (defaults to --config)",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		filename := command.StringArg("config")
		if filename == "" {
			filename = command.Root().String("config")
		}
		if filename == "" {
			filename = setup.DefaultConfigPath()
		}
		if filename == "" {
			return fmt.Errorf("no configuration file provided")
		}

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read config file '%s': %w", filename, err)
		}

		logger = logger.With(zap.String("config_filename", filename))
		logger.Debug("validating config file")

		cfg, err := setup.ParseConfig(data)
		if err != nil {
			fmt.Fprintln(command.Root().ErrWriter, formatValidationError(err))
			return fmt.Errorf("config file '%s' is invalid", filename)
		}

		if err := setup.ExpandConfig(&cfg, command.Root().StringSlice("allowed-env")); err != nil {
			return err
		}

		resolver, err := setup.BuildResolver(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to build drivers: %w", err)
		}

		w := command.Root().Writer
		fmt.Fprintf(w, "✓ Config file '%s' is valid\n", filename)
		for _, kind := range resolver.Registry().Kinds() {
			if !kind.Available() {
				fmt.Fprintf(w, "  • driver %s is unavailable: %s\n", kind.Name(), kind.InstallInstruction())
			}
		}
		return nil
	},
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("config file has %d validation error(s):", len(validationErrs)))
		for _, fe := range validationErrs {
			sb.WriteString(fmt.Sprintf("\n  • %s: failed '%s' validation", fe.Namespace(), fe.Tag()))
			if fe.Param() != "" {
				sb.WriteString(fmt.Sprintf(" (param: %s)", fe.Param()))
			}
		}
		return errors.New(sb.String())
	}
	return err
}
