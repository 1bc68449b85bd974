package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/detect"
	"github.com/archivekit/archivekit/internal/engine/sinks"
	"github.com/archivekit/archivekit/internal/fileset"
	"github.com/archivekit/archivekit/pkg/archive"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var levelFlag = &cli.StringFlag{
	Name:  "level",
	Value: engine.LevelAverage.String(),
	Usage: "Compression level (none, weak, average, strong, maximum)",
	Action: func(ctx context.Context, command *cli.Command, s string) error {
		_, err := engine.ParseCompressionLevel(s)
		return err
	},
}

// parseInput turns positional sources into a fileset input. "name=path"
// stores path under name; anything else is a bare path.
func parseInput(args []string) (fileset.Input, error) {
	var in fileset.Input
	for _, arg := range args {
		name, p, ok := strings.Cut(arg, "=")
		if !ok {
			in.Paths = append(in.Paths, arg)
			continue
		}
		if name == "" {
			return in, fmt.Errorf("invalid source %q: empty archive name", arg)
		}
		if in.Map == nil {
			in.Map = map[string]string{}
		}
		in.Map[name] = p
	}
	if len(in.Paths) == 0 && len(in.Map) == 0 {
		return in, errors.New("no source files provided")
	}
	return in, nil
}

var createCommand = &cli.Command{
	Name:      "create",
	Aliases:   []string{"c"},
	Usage:     "Create an archive; the format comes from the destination name",
	ArgsUsage: "<dest> <path|name=path>...",
	Flags: []cli.Flag{
		levelFlag, passwordFlag, askPasswordFlag, outputFlag,
		&cli.StringSliceFlag{Name: "exclude", Aliases: []string{"e"}, Usage: "Gitignore-style pattern to skip (can be repeated)"},
		&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Report what would be archived without writing"},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		dest := command.Args().First()
		if dest == "" {
			return errors.New("no destination provided")
		}
		in, err := parseInput(command.Args().Tail())
		if err != nil {
			return err
		}
		level, err := engine.ParseCompressionLevel(command.String("level"))
		if err != nil {
			return err
		}
		pw, err := password(command)
		if err != nil {
			return err
		}
		e, err := newEnv(ctx, command)
		if err != nil {
			return err
		}

		dryRun := command.Bool("dry-run")
		res, err := archive.ArchiveFiles(ctx, in, dest, e.createOptions(ctx,
			archive.Level(level),
			archive.Password(pw),
			archive.Exclude(command.StringSlice("exclude")...),
			archive.DryRun(dryRun),
		)...)
		if err != nil {
			return err
		}

		w := command.Root().Writer
		if dryRun {
			if out := command.String("output"); out != "table" {
				return encode(ctx, w, out, res.Report)
			}
			for _, f := range res.Report.Files {
				fmt.Fprintln(w, f)
			}
			fmt.Fprintf(w, "%d file(s), %d bytes would be archived into %s with %s\n",
				res.Report.FileCount, res.Report.TotalSize, dest, res.Driver)
			return nil
		}
		e.logger.Info("archive created", zap.String("path", dest), zap.String("driver", res.Driver), zap.Int("files", res.Count))
		fmt.Fprintf(os.Stderr, "archived %d item(s) into %s\n", res.Count, dest)
		return nil
	},
}

var addCommand = &cli.Command{
	Name:      "add",
	Usage:     "Add files or directories to an existing archive",
	ArgsUsage: "<archive> <path|name=path>...",
	Flags: []cli.Flag{
		passwordFlag, askPasswordFlag,
		&cli.StringFlag{Name: "prefix", Usage: "Directory inside the archive to add bare paths under"},
	},
	Action: func(ctx context.Context, command *cli.Command) (err error) {
		location, err := archiveArg(command)
		if err != nil {
			return err
		}
		in, err := parseInput(command.Args().Tail())
		if err != nil {
			return err
		}
		e, err := newEnv(ctx, command)
		if err != nil {
			return err
		}
		pw, err := password(command)
		if err != nil {
			return err
		}
		a, err := e.open(ctx, location, pw)
		if err != nil {
			return err
		}
		defer closeArchive(a, &err)

		total := 0
		prefix := command.String("prefix")
		for _, p := range in.Paths {
			var n int
			st, err := os.Stat(p)
			switch {
			case err != nil:
				return err
			case st.IsDir():
				n, err = a.AddDirectory(ctx, p, prefix)
			default:
				n, err = a.AddFile(ctx, p, joinName(prefix, filepath.Base(p)))
			}
			if err != nil {
				return err
			}
			total += n
		}
		if len(in.Map) > 0 {
			n, err := a.AddFiles(ctx, in.Map)
			if err != nil {
				return err
			}
			total += n
		}
		fmt.Fprintf(os.Stderr, "added %d item(s); %s now holds %d file(s)\n", total, location, a.CountFiles())
		return nil
	},
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Aliases:   []string{"rm"},
	Usage:     "Delete entries; a directory removes everything below it",
	ArgsUsage: "<archive> <entry|dir>...",
	Flags:     []cli.Flag{passwordFlag, askPasswordFlag},
	Action: func(ctx context.Context, command *cli.Command) (err error) {
		location, err := archiveArg(command)
		if err != nil {
			return err
		}
		paths := command.Args().Tail()
		if len(paths) == 0 {
			return errors.New("no entry provided")
		}
		e, err := newEnv(ctx, command)
		if err != nil {
			return err
		}
		pw, err := password(command)
		if err != nil {
			return err
		}
		a, err := e.open(ctx, location, pw)
		if err != nil {
			return err
		}
		defer closeArchive(a, &err)

		n, err := a.Delete(ctx, paths...)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted %d file(s)\n", n)
		return nil
	},
}

var commentCommand = &cli.Command{
	Name:      "comment",
	Usage:     "Print or change the archive comment",
	ArgsUsage: "<archive>",
	Flags: []cli.Flag{
		passwordFlag, askPasswordFlag,
		&cli.StringFlag{Name: "set", Usage: "Replace the comment"},
		&cli.BoolFlag{Name: "clear", Usage: "Remove the comment"},
	},
	Action: func(ctx context.Context, command *cli.Command) (err error) {
		location, err := archiveArg(command)
		if err != nil {
			return err
		}
		if command.IsSet("set") && command.Bool("clear") {
			return errors.New("--set and --clear are mutually exclusive")
		}
		e, err := newEnv(ctx, command)
		if err != nil {
			return err
		}
		pw, err := password(command)
		if err != nil {
			return err
		}
		a, err := e.open(ctx, location, pw)
		if err != nil {
			return err
		}
		defer closeArchive(a, &err)

		switch {
		case command.IsSet("set"):
			text := command.String("set")
			return a.SetComment(ctx, &text)
		case command.Bool("clear"):
			return a.SetComment(ctx, nil)
		}

		comment, err := a.Comment(ctx)
		if err != nil {
			return err
		}
		if comment != nil {
			fmt.Fprintln(command.Root().Writer, *comment)
		}
		return nil
	},
}

var convertCommand = &cli.Command{
	Name:      "convert",
	Usage:     "Repack an archive into another format (zip or tar family)",
	ArgsUsage: "<source|url> <dest>",
	Flags:     []cli.Flag{passwordFlag, askPasswordFlag, levelFlag},
	Action: func(ctx context.Context, command *cli.Command) (err error) {
		location, err := archiveArg(command)
		if err != nil {
			return err
		}
		dest := command.Args().Get(1)
		if dest == "" {
			return errors.New("no destination provided")
		}
		f := detect.FromName(dest)
		if f == engine.None {
			return &engine.UnsupportedFormatError{Path: dest}
		}
		level, err := engine.ParseCompressionLevel(command.String("level"))
		if err != nil {
			return err
		}
		e, err := newEnv(ctx, command)
		if err != nil {
			return err
		}
		pw, err := password(command)
		if err != nil {
			return err
		}

		dir := filepath.Dir(dest)
		inner, err := sinks.NewFilesystemSinkFromPath(dir)
		if err != nil {
			return err
		}
		sink, err := sinks.NewArchiveSink(inner, f, level, filepath.Base(dest))
		if err != nil {
			return err
		}

		a, err := e.open(ctx, location, pw)
		if err != nil {
			return errors.Join(err, sink.Discard())
		}
		defer closeArchive(a, &err)

		if _, err := a.ExtractTo(ctx, sink); err != nil {
			return errors.Join(err, sink.Discard())
		}
		if err := sink.Close(ctx); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "converted %d file(s) from %s to %s\n", sink.Entries(), a.Format(), f)
		return nil
	},
}
