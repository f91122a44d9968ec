package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/michaelswisa/FileExporter/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Version)
			cmd.Printf("commit: %s\n", version.Commit)
			cmd.Printf("go: %s\n", runtime.Version())
			cmd.Printf("platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
