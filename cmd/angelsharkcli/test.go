package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func testCmd(loginFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Prints parsed logins and inputs but does not run anything",
		Long:  "Does not execute commands entered, instead prints out the ACM logins and inputs it read (useful for debugging)",
		RunE: func(cmd *cobra.Command, args []string) error {
			acms, inputs, err := loadAcmsAndInputs(*loginFile)
			if err != nil {
				return err
			}
			fmt.Printf("%#v\n", acms)
			fmt.Printf("%#v\n", inputs)
			return nil
		},
	}
}
