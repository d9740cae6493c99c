// Package knife builds and runs the external bootstrap commands that
// hand a freshly launched host over to the configuration tool.
package knife

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// BootstrapUser is the remote account the bootstrap connects as.
const BootstrapUser = "ubuntu"

// Command is one external invocation, fully resolved to binary + argv.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Bootstrap builds the direct bootstrap invocation: connect to the
// address, escalate, register the node and apply the runlist.
func Bootstrap(addr, identity, node, runlist string) Command {
	return Command{
		Name: "knife",
		Args: []string{
			"bootstrap", addr,
			"-x", BootstrapUser,
			"--sudo",
			"-i", identity,
			"-N", node,
			"--run-list", runlist,
		},
	}
}

// SoloBootstrap builds the solo variant, which carries a local
// attributes file instead of talking to an orchestration server.
func SoloBootstrap(addr, identity, node, runlist, attributes string) Command {
	return Command{
		Name: "knife",
		Args: []string{
			"solo", "bootstrap",
			BootstrapUser + "@" + addr,
			attributes,
			"-i", identity,
			"-N", node,
			"--run-list", runlist,
		},
	}
}

// Runner executes bootstrap commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes, streaming their output
// straight to the operator's terminal.
type ExecRunner struct{}

// Run blocks until the command exits. A non-zero exit propagates as an
// error.
func (ExecRunner) Run(ctx context.Context, cmd Command) error {
	log.Info().Str("command", cmd.String()).Msg("running bootstrap")

	// #nosec G204 -- argv is assembled from operator-declared specs
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Stdout = os.Stdout
	proc.Stderr = os.Stderr

	if err := proc.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", cmd.Name, err)
	}
	return nil
}

var _ Runner = ExecRunner{}
