package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List hub services",
	Long:  "List the service names registered on the hub.",
	Args:  noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext()
		defer stop()

		conn, err := dialConn(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		opCtx, cancel := withTimeout(ctx)
		defer cancel()

		services, err := conn.ListServices(opCtx)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(services)
		}
		for _, s := range services {
			fmt.Println(s)
		}
		return nil
	},
}
