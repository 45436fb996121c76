package commands

import (
	"fmt"
	"runtime"

	"git.home.luguber.info/inful/sitegen/internal/version"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (v *VersionCmd) Run(g *Global) error {
	_, err := fmt.Fprintf(g.out(), "sitegen %s (commit %s, built %s, %s)\n",
		version.Version, version.GitCommit, version.BuildTime, runtime.Version())
	return err
}
