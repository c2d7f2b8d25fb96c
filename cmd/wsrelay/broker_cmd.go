package main

import (
	"github.com/spf13/cobra"

	wrshare "github.com/wsrelay/wsrelay/share"
)

func newBrokerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run the relay broker that pairs ingress and egress traffic",
		Example: `
  # Listen on the default port
  wsrelay broker

  # Listen elsewhere, via flag or environment
  wsrelay broker --listen :9090
  WSRELAY_LISTEN=:9090 wsrelay broker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := bindEnv(cmd)
			broker, err := wrshare.NewBroker(&wrshare.BrokerConfig{
				ListenAddr: v.GetString("listen"),
				Debug:      v.GetBool("debug"),
			})
			if err != nil {
				return err
			}
			return broker.Run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("listen", ":8080", "listen address for relay connections")
	flags.Bool("debug", false, "enable debug logging")
	return cmd
}
