package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func manCmd(loginFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "man",
		Short: "Prints command manual pages via the `ossiem` term",
		Long:  "Reads commands on STDIN and prints their SAT manual pages on STDOUT",
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			acms, inputs, err := loadAcmsAndInputs(*loginFile)
			if err != nil {
				return err
			}
			runner := buildRunner(acms, inputs)
			n := 0
			for res := range runner.Manuals() {
				if res.Err != nil {
					fmt.Fprintf(os.Stderr, "angelsharkcli: manual (%s): %v\n", res.Name, res.Err)
					continue
				}
				fmt.Println(res.Output)
				n++
			}
			fmt.Fprintf(os.Stderr, "angelsharkcli: fetched %d manual page(s), started %s\n", n, humanize.Time(started))
			return nil
		},
	}
}
