package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test the directory connection and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Open(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Connected, base DN %s\n", a.session.BaseDN())
			return nil
		},
	}
}
