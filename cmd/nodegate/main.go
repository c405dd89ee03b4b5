package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodegate-io/nodegate/internal/config"
	nodeversion "github.com/nodegate-io/nodegate/internal/version"
)

var flagNode string

func main() {
	rootCmd := &cobra.Command{
		Use:           "nodegate",
		Short:         "Nodegate CLI - talk to a running node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = nodeversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.PersistentFlags().StringVar(&flagNode, "node", config.DefaultNode, "node name")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newForgetCmd())
	rootCmd.AddCommand(newEventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node's lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := consoleCommand("status")
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Wipe stored Wi-Fi credentials and restart the controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := consoleCommand("forget")
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

// consoleCommand sends one line to the daemon's console socket and
// returns the single reply line.
func consoleCommand(command string) (string, error) {
	paths := config.GetNodePaths(flagNode)

	conn, err := net.DialTimeout("unix", paths.Socket, 2*time.Second)
	if err != nil {
		return "", fmt.Errorf("connect to daemon (is nodegated running?): %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, command); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return reply[:len(reply)-1], nil
}
