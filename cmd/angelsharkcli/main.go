// Command angelsharkcli reads OSSI commands from stdin, a set of ACM
// logins from a config file, and runs each command against the configured
// ACMs its input names, in parallel. What it does with the output depends on the
// subcommand: the default just runs and reports errors on stderr; test
// echoes the parsed logins and input without running anything; man prints
// SAT manual pages instead of running commands; print writes data rows to
// stdout or to per-command files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/angelshark"
)

func main() {
	var loginFile string

	root := &cobra.Command{
		Use:   "angelsharkcli",
		Short: "Altruistic Angelshark CLI",
		Long: "Reads STDIN and parses all lines as commands to be fed to one or more ACMs. " +
			"When it reaches EOF, it stops parsing and starts executing the command(s) on the ACM(s). " +
			"What it does with the output can be configured with subcommands and flags. " +
			"The default behavior is to run commands but print no output (for quick changes). " +
			"Errors are printed on STDERR.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			acms, inputs, err := loadAcmsAndInputs(loginFile)
			if err != nil {
				return err
			}
			runDefault(acms, inputs)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&loginFile, "login-file", "l", "./asa.cfg", "Set ACM login configuration file")

	root.AddCommand(testCmd(&loginFile))
	root.AddCommand(manCmd(&loginFile))
	root.AddCommand(printCmd(&loginFile))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadAcmsAndInputs reads loginFile and all of stdin, mirroring the
// original CLI's "read everything before running anything" behavior: an
// unreadable login file or input aborts before any ACM session opens.
// Malformed login lines do not abort; they are reported on stderr and
// skipped.
func loadAcmsAndInputs(loginFile string) ([]angelshark.NamedAcm, []angelshark.NamedMessage, error) {
	f, err := os.Open(loginFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open logins file %s: %w", loginFile, err)
	}
	defer f.Close()

	acms, skipped, err := angelshark.ParseLogins(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse logins: %w", err)
	}
	for _, s := range skipped {
		fmt.Fprintf(os.Stderr, "angelsharkcli: skipped login line %d: %s\n", s.Line, s.Reason)
	}

	inputs, err := angelshark.ParseInput(os.Stdin)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}

	return acms, inputs, nil
}

func buildRunner(acms []angelshark.NamedAcm, inputs []angelshark.NamedMessage) *angelshark.Runner {
	runner := angelshark.NewRunner()
	for _, na := range acms {
		runner.RegisterAcm(na.Name, na.Acm)
	}
	for _, ni := range inputs {
		runner.QueueInput(ni.Name, ni.Message)
	}
	return runner
}

// runDefault runs every queued command and reports only errors, on
// stderr: the quiet default for scripted one-off changes.
func runDefault(acms []angelshark.NamedAcm, inputs []angelshark.NamedMessage) {
	runner := buildRunner(acms, inputs)
	for res := range runner.Run() {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "angelsharkcli: runner (%s): %v\n", res.Name, res.Err)
			continue
		}
		for _, msg := range res.Messages {
			if msg.Error != "" {
				fmt.Fprintf(os.Stderr, "angelsharkcli: ossi (%s): %s\n", res.Name, msg.Error)
			}
		}
	}
}
