package main

import (
	"github.com/spf13/cobra"

	wrshare "github.com/wsrelay/wsrelay/share"
)

func newEgressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "egress",
		Short: "Run the egress executor that replays relayed requests against the target API",
		Example: `
  # Execute relayed requests against a local API
  wsrelay egress --broker-url http://relay.example.com:8080 --target-url http://localhost:3000

  # Same thing from the environment
  WSRELAY_BROKER_URL=http://relay.example.com:8080 WSRELAY_TARGET_URL=http://localhost:3000 wsrelay egress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := bindEnv(cmd)
			egress, err := wrshare.NewEgress(&wrshare.EgressConfig{
				BrokerURL:      v.GetString("broker-url"),
				TargetBaseURL:  v.GetString("target-url"),
				RequestTimeout: v.GetDuration("timeout"),
				RetryInterval:  v.GetDuration("retry-interval"),
				KeepAlive:      v.GetDuration("keepalive"),
				Debug:          v.GetBool("debug"),
			})
			if err != nil {
				return err
			}
			return egress.Run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("broker-url", "http://localhost:8080", "relay broker URL")
	flags.String("target-url", "http://localhost:3000", "base URL of the real target API")
	flags.Duration("timeout", wrshare.DefaultRequestTimeout, "timeout for calls against the target")
	flags.Duration("retry-interval", wrshare.DefaultRetryInterval, "fixed delay between broker reconnect attempts")
	flags.Duration("keepalive", 0, "websocket ping interval on the broker link (0 disables)")
	flags.Bool("debug", false, "enable debug logging")
	return cmd
}
