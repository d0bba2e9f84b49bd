package main

import (
	"github.com/spf13/cobra"
)

func newOUCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ou",
		Short: "Browse organizational units",
	}

	var output string
	list := &cobra.Command{
		Use:   "list",
		Short: "List organizational unit distinguished names",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkOutput(output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.OUs.Load(cmd.Context()); err != nil {
				return err
			}
			return printLines(a.out, output, a.session.OUs.Units())
		},
	}
	list.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")

	cmd.AddCommand(list)
	return cmd
}
