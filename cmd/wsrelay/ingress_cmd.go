package main

import (
	"github.com/spf13/cobra"

	wrshare "github.com/wsrelay/wsrelay/share"
)

func newIngressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingress",
		Short: "Run the ingress adapter that accepts local HTTP requests",
		Example: `
  # Accept local traffic on :8081 and relay it via a broker
  wsrelay ingress --broker-url http://relay.example.com:8080

  # Same thing from the environment
  WSRELAY_BROKER_URL=http://relay.example.com:8080 wsrelay ingress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := bindEnv(cmd)
			ingress, err := wrshare.NewIngress(&wrshare.IngressConfig{
				ListenAddr:     v.GetString("listen"),
				BrokerURL:      v.GetString("broker-url"),
				ClientID:       v.GetString("client-id"),
				RequestTimeout: v.GetDuration("timeout"),
				RetryInterval:  v.GetDuration("retry-interval"),
				KeepAlive:      v.GetDuration("keepalive"),
				MaxBodyBytes:   v.GetInt64("max-body"),
				Debug:          v.GetBool("debug"),
			})
			if err != nil {
				return err
			}
			return ingress.Run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("listen", ":8081", "local listen address for proxied HTTP requests")
	flags.String("broker-url", "http://localhost:8080", "relay broker URL")
	flags.String("client-id", "", "client identifier to register with (broker assigns one if empty)")
	flags.Duration("timeout", wrshare.DefaultRequestTimeout, "per-request relay timeout")
	flags.Duration("retry-interval", wrshare.DefaultRetryInterval, "fixed delay between broker reconnect attempts")
	flags.Duration("keepalive", 0, "websocket ping interval on the broker link (0 disables)")
	flags.Int64("max-body", wrshare.DefaultMaxBodyBytes, "maximum accepted request body in bytes")
	flags.Bool("debug", false, "enable debug logging")
	return cmd
}
