package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpy-hil/planrunner/pkg/devs"
	"github.com/mpy-hil/planrunner/providers/uhubctl"
)

func newDevsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devs",
		Short: "Query HIL device attributes",
	}
	cmd.AddCommand(newDevsQueryCmd())
	return cmd
}

func newDevsQueryCmd() *cobra.Command {
	var (
		flagFilters      []string
		flagDevsYML      string
		flagNotConnected bool
	)

	cmd := &cobra.Command{
		Use:   "query <field>",
		Short: "Print a device field (name, uid, address, hub, port) across devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := devs.ParseField(args[0])
			if err != nil {
				return err
			}
			filters := make([]devs.Filter, 0, len(flagFilters))
			for _, expr := range flagFilters {
				filter, err := devs.ParseFilter(expr)
				if err != nil {
					return err
				}
				filters = append(filters, filter)
			}

			devices, err := loadQueryDevices(cmd.Context(), flagDevsYML, flagNotConnected)
			if err != nil {
				return err
			}
			values := devs.Query(devices, field, filters)
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(values, " "))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&flagFilters, "filter", "f", nil, "Filter in format 'attribute=value'; repeatable")
	cmd.Flags().StringVarP(&flagDevsYML, "devs-yml", "y", "", "Device YAML file. Without it, the connected serial devices are queried")
	cmd.Flags().BoolVar(&flagNotConnected, "not-connected", false, "Include not-connected devices from the device list (only with --devs-yml)")
	return cmd
}

func loadQueryDevices(ctx context.Context, devsYML string, notConnected bool) ([]*devs.Device, error) {
	registry := devs.NewRegistry(uhubctl.NewController())
	if devsYML == "" {
		return registry.ScanConnected()
	}
	devices, err := registry.Load(ctx, devsYML)
	if err != nil {
		return nil, err
	}
	if notConnected {
		return devices, nil
	}
	connected := devices[:0]
	for _, dev := range devices {
		if dev.Connected() {
			connected = append(connected, dev)
		}
	}
	return connected, nil
}
