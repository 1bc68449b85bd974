package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/encoders"
	"github.com/archivekit/archivekit/internal/engine/sinks"
	"github.com/archivekit/archivekit/internal/query"
	"github.com/archivekit/archivekit/internal/setup"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   "table",
		Usage:   "Output format (table, json, yaml)",
		Action: func(ctx context.Context, command *cli.Command, s string) error {
			switch s {
			case "table", "json", "yaml":
				return nil
			}
			return fmt.Errorf("invalid output %q", s)
		},
	}
	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Aliases: []string{"p"},
		Usage:   "Archive password",
		Sources: cli.EnvVars("ARCHIVEKIT_PASSWORD"),
	}
	askPasswordFlag = &cli.BoolFlag{
		Name:  "ask-password",
		Usage: "Prompt for the archive password",
	}
	filterFlag = &cli.StringFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   `CEL expression selecting entries, e.g. 'size > 1024 && ext == ".log"'`,
	}
)

func password(command *cli.Command) (string, error) {
	if command.Bool("ask-password") {
		return readPassword("Password: ")
	}
	return command.String("password"), nil
}

func archiveArg(command *cli.Command) (string, error) {
	location := command.Args().First()
	if location == "" {
		return "", errors.New("no archive provided")
	}
	return location, nil
}

// encode writes v with the encoder named by --output.
func encode(ctx context.Context, w io.Writer, output string, v any) error {
	enc, err := encoders.ByName(output)
	if err != nil {
		return err
	}
	r, err := enc.Encode(ctx, v)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

var formatsCommand = &cli.Command{
	Name:  "formats",
	Usage: "List formats, the drivers serving them and their capabilities",
	Flags: []cli.Flag{outputFlag},
	Action: func(ctx context.Context, command *cli.Command) error {
		cfg, err := loadConfig(command)
		if err != nil {
			return err
		}
		resolver, err := setup.BuildResolver(cfg, getLogger(ctx))
		if err != nil {
			return err
		}
		rows := resolver.SupportTable()

		w := command.Root().Writer
		if out := command.String("output"); out != "table" {
			return encode(ctx, w, out, rows)
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FORMAT\tDRIVER\tAVAILABLE\tCAPABILITIES")
		var hints []string
		for _, row := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", row.Format, row.Driver, row.Available, row.Capabilities)
			if row.InstallInstruction != "" && !slices.Contains(hints, row.InstallInstruction) {
				hints = append(hints, row.InstallInstruction)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, h := range hints {
			fmt.Fprintf(w, "hint: %s\n", h)
		}
		return nil
	},
}

type archiveInfo struct {
	Path             string            `json:"path" yaml:"path"`
	Format           engine.Format     `json:"format" yaml:"format"`
	Driver           string            `json:"driver" yaml:"driver"`
	Capabilities     engine.Capability `json:"capabilities" yaml:"capabilities"`
	Files            int               `json:"files" yaml:"files"`
	Directories      int               `json:"directories" yaml:"directories"`
	CompressedSize   int64             `json:"compressed_size" yaml:"compressed_size"`
	UncompressedSize int64             `json:"uncompressed_size" yaml:"uncompressed_size"`
	OriginalSize     int64             `json:"original_size" yaml:"original_size"`
	Comment          *string           `json:"comment,omitempty" yaml:"comment,omitempty"`
}

var infoCommand = &cli.Command{
	Name:      "info",
	Usage:     "Show a summary of an archive",
	ArgsUsage: "<archive|url>",
	Flags:     []cli.Flag{outputFlag, passwordFlag, askPasswordFlag},
	Action: func(ctx context.Context, command *cli.Command) (err error) {
		location, err := archiveArg(command)
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

		info := archiveInfo{
			Path:             location,
			Format:           a.Format(),
			Driver:           a.Driver(),
			Capabilities:     a.Capabilities(),
			Files:            a.CountFiles(),
			Directories:      len(a.Directories()),
			CompressedSize:   a.CompressedSize(),
			UncompressedSize: a.UncompressedSize(),
			OriginalSize:     a.OriginalSize(),
		}
		if a.Capabilities().Has(engine.CapGetComment) {
			if info.Comment, err = a.Comment(ctx); err != nil {
				return err
			}
		}

		w := command.Root().Writer
		if out := command.String("output"); out != "table" {
			return encode(ctx, w, out, info)
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Path:\t%s\n", info.Path)
		fmt.Fprintf(tw, "Format:\t%s\n", info.Format)
		fmt.Fprintf(tw, "Driver:\t%s\n", info.Driver)
		fmt.Fprintf(tw, "Capabilities:\t%s\n", info.Capabilities)
		fmt.Fprintf(tw, "Files:\t%d\n", info.Files)
		fmt.Fprintf(tw, "Directories:\t%d\n", info.Directories)
		fmt.Fprintf(tw, "Uncompressed:\t%d\n", info.UncompressedSize)
		fmt.Fprintf(tw, "Compressed:\t%d\n", info.CompressedSize)
		fmt.Fprintf(tw, "On disk:\t%d\n", info.OriginalSize)
		if info.Comment != nil {
			fmt.Fprintf(tw, "Comment:\t%s\n", *info.Comment)
		}
		return tw.Flush()
	},
}

var listCommand = &cli.Command{
	Name:      "list",
	Aliases:   []string{"ls"},
	Usage:     "List the entries of an archive",
	ArgsUsage: "<archive|url>",
	Flags: []cli.Flag{
		outputFlag, passwordFlag, askPasswordFlag, filterFlag,
		&cli.BoolFlag{Name: "tree", Usage: "Print the directory hierarchy instead of a flat list"},
	},
	Action: func(ctx context.Context, command *cli.Command) (err error) {
		location, err := archiveArg(command)
		if err != nil {
			return err
		}
		var filter *query.Filter
		if expr := command.String("filter"); expr != "" {
			if filter, err = query.Compile(expr); err != nil {
				return err
			}
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

		entries, err := a.Entries(ctx, filter)
		if err != nil {
			return err
		}

		w := command.Root().Writer
		out := command.String("output")
		if command.Bool("tree") {
			paths := make([]string, len(entries))
			for i, en := range entries {
				paths[i] = en.Path
			}
			tree := engine.BuildTree(paths)
			if out != "table" {
				return encode(ctx, w, out, tree)
			}
			printTree(w, tree, "")
			return nil
		}
		if out != "table" {
			return encode(ctx, w, out, entries)
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "SIZE\tPACKED\tMODIFIED\t\tPATH")
		for _, en := range entries {
			modified := "-"
			if !en.ModTime.IsZero() {
				modified = en.ModTime.Local().Format(time.DateTime)
			}
			packed := "-"
			if en.CompressedSize > 0 {
				packed = fmt.Sprint(en.CompressedSize)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t\t%s\n", en.UncompressedSize, packed, modified, en.Path)
		}
		return tw.Flush()
	},
}

func printTree(w io.Writer, n *engine.Node, indent string) {
	for _, c := range n.Children {
		name := c.Name
		if c.Dir {
			name += "/"
		}
		fmt.Fprintf(w, "%s%s\n", indent, name)
		if c.Dir {
			printTree(w, c, indent+"  ")
		}
	}
}

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "Write entries to stdout",
	ArgsUsage: "<archive|url> <entry>...",
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

		for _, p := range paths {
			if err := copyEntry(ctx, command.Root().Writer, a.OpenEntry, p); err != nil {
				return err
			}
		}
		return nil
	},
}

func copyEntry(ctx context.Context, w io.Writer, open func(context.Context, string) (io.ReadCloser, error), p string) (err error) {
	rc, err := open(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(w, rc)
	return err
}

var extractCommand = &cli.Command{
	Name:      "extract",
	Aliases:   []string{"x"},
	Usage:     "Extract entries to a directory, an S3 prefix or stdout",
	ArgsUsage: "<archive|url> [entry|dir]...",
	Flags: []cli.Flag{
		passwordFlag, askPasswordFlag, filterFlag,
		&cli.StringFlag{
			Name:    "to",
			Aliases: []string{"C"},
			Value:   ".",
			Usage:   "Destination directory or s3://bucket/prefix",
		},
		&cli.BoolFlag{Name: "stdout", Usage: "Concatenate the entries on stdout"},
		&cli.BoolFlag{Name: "keep-existing", Aliases: []string{"k"}, Usage: "Fail instead of replacing existing local files"},
	},
	Action: func(ctx context.Context, command *cli.Command) (err error) {
		location, err := archiveArg(command)
		if err != nil {
			return err
		}
		paths := command.Args().Tail()
		var filter *query.Filter
		if expr := command.String("filter"); expr != "" {
			if filter, err = query.Compile(expr); err != nil {
				return err
			}
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

		if filter != nil {
			entries, err := a.Entries(ctx, filter)
			if err != nil {
				return err
			}
			if len(paths) > 0 {
				entries = underAny(entries, paths)
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, "no entries match the filter")
				return nil
			}
			paths = nil
			for _, en := range entries {
				paths = append(paths, en.Path)
			}
		}

		var sink engine.Sink
		if command.Bool("stdout") {
			sink = sinks.NewStreamSink(command.Root().Writer)
		} else if sink, err = setup.BuildSink(ctx, e.config, command.String("to"), sinks.KeepExisting(command.Bool("keep-existing"))); err != nil {
			return err
		}

		n, err := a.ExtractTo(ctx, sink, paths...)
		if cerr := sink.Close(ctx); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		e.logger.Info("extracted", zap.Int("files", n), zap.String("sink", sink.Name()))
		switch s := sink.(type) {
		case *sinks.FilesystemSink:
			_, size := s.Written()
			fmt.Fprintf(os.Stderr, "extracted %d file(s), %d bytes to %s\n", n, size, s.Root())
		case *sinks.S3Sink:
			fmt.Fprintf(os.Stderr, "uploaded %d file(s) to %s\n", n, command.String("to"))
		}
		return nil
	},
}

// underAny keeps the entries equal to or below one of paths.
func underAny(entries []engine.Entry, paths []string) []engine.Entry {
	var out []engine.Entry
	for _, en := range entries {
		if engine.Selected(en.Path, paths) {
			out = append(out, en)
		}
	}
	return out
}
