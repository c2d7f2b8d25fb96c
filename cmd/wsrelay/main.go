// Command wsrelay runs one of the three relay roles: the broker that pairs
// traffic, the ingress adapter that accepts local HTTP requests, or the
// egress executor that replays them against the real target API.
//
// Every flag can also be set through the environment with a WSRELAY_ prefix,
// e.g. WSRELAY_BROKER_URL for --broker-url.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	wrshare "github.com/wsrelay/wsrelay/share"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "wsrelay: %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wsrelay",
		Short:         "wsrelay tunnels HTTP traffic between unreachable networks through a relay broker",
		Version:       wrshare.BuildVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(
		newBrokerCommand(),
		newIngressCommand(),
		newEgressCommand(),
	)
	return cmd
}

// bindEnv wires a command's flags to WSRELAY_-prefixed environment variables;
// a set flag always wins over the environment.
func bindEnv(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WSRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.BindPFlags(cmd.Flags())
	return v
}
