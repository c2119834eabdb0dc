package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mpy-hil/planrunner/providers/uhubctl"
)

func newPowerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "power",
		Short: "Operate uhubctl-switchable hub ports directly",
	}
	cmd.AddCommand(
		newPowerScanCmd(),
		newPowerStatusCmd(),
		newPowerActionCmd(uhubctl.ActionOn),
		newPowerActionCmd(uhubctl.ActionOff),
		newPowerActionCmd(uhubctl.ActionCycle),
		newPowerActionCmd(uhubctl.ActionToggle),
	)
	return cmd
}

func newPowerScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List every switchable hub port (duplicates from USB 3.0 duality included)",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, hp := range uhubctl.NewController().ScanHubsPorts(cmd.Context()) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", hp.Hub, hp.Port)
			}
			return nil
		},
	}
}

func newPowerStatusCmd() *cobra.Command {
	var (
		flagHub  string
		flagPort int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the power status of one hub port",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagHub == "" || flagPort <= 0 {
				return errors.New("--hub and --port are required")
			}
			status := uhubctl.NewController().GetStatus(cmd.Context(), flagHub, flagPort)
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagHub, "hub", "", "Hub location, e.g. 1-1.3")
	cmd.Flags().IntVar(&flagPort, "port", 0, "Port number")
	return cmd
}

func newPowerActionCmd(action uhubctl.Action) *cobra.Command {
	var (
		flagHub  string
		flagPort int
	)
	cmd := &cobra.Command{
		Use:   string(action),
		Short: fmt.Sprintf("Run the %s action on a hub port", action),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagHub == "" && flagPort <= 0 {
				return errors.New("--hub or --port is required")
			}
			uhubctl.NewController().RunAction(cmd.Context(), action, flagHub, flagPort)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagHub, "hub", "", "Hub location; empty applies the action to all hubs")
	cmd.Flags().IntVar(&flagPort, "port", 0, "Port number; 0 applies the action to all ports of the hub")
	return cmd
}
