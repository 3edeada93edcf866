package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evbus",
		Short: "In-process event bus with prioritized handlers",
		Long: `evbus demonstrates an in-process publish/subscribe bus.

Listeners register handlers for event types; posted events are delivered
synchronously in priority order, and handler failures never stop delivery.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newConfigCmd(), newEventsCmd(), newVersionCmd())
	return root
}
