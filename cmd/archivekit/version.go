package main

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/urfave/cli/v3"
)

type buildInfo struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// currentBuild reads the module and VCS stamps embedded by the go tool.
var currentBuild = sync.OnceValue(func() buildInfo {
	bi := buildInfo{Version: "unknown", GoVersion: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}

	bi.Version = info.Main.Version
	bi.GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			bi.Commit = setting.Value
		case "vcs.time":
			bi.BuildTime = setting.Value
		case "vcs.modified":
			bi.Modified = setting.Value == "true"
		}
	}
	return bi
})

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version information",
	Flags: []cli.Flag{outputFlag},
	Action: func(ctx context.Context, command *cli.Command) error {
		bi := currentBuild()
		w := command.Root().Writer
		if out := command.String("output"); out != "table" {
			return encode(ctx, w, out, bi)
		}

		fmt.Fprintf(w, "archivekit %s (%s)\n", bi.Version, bi.GoVersion)
		if bi.Commit != "" {
			dirty := ""
			if bi.Modified {
				dirty = "-dirty"
			}
			fmt.Fprintf(w, "commit %s%s", bi.Commit, dirty)
			if bi.BuildTime != "" {
				fmt.Fprintf(w, " built %s", bi.BuildTime)
			}
			fmt.Fprintln(w)
		}
		return nil
	},
}
