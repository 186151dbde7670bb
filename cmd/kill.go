package cmd

import (
	"context"
	"github.com/denis-ismailaj/wharf/internal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	killSignal string
)

func init() {
	killCmd.Flags().StringVarP(&killSignal, "signal", "s", "SIGKILL", "Signal to send to the container.")
	RootCmd.AddCommand(killCmd)
}

var killCmd = &cobra.Command{
	Use:   "kill <service>",
	Short: "Kills a service's container. A supervising wharf restarts it according to its restart policy.",
	Args:  cobra.ExactArgs(1),
	Run:   kill,
}

func kill(_ *cobra.Command, args []string) {
	// Create Docker client
	cli, err := internal.NewDockerClient()
	if err != nil {
		log.Fatal(err)
	}
	defer cli.Close()

	ctx := context.Background()

	// The name of the service to kill
	name := args[0]

	containerID, err := findServiceContainer(ctx, cli, name)
	if err != nil {
		log.Fatal(err)
	}

	if err := cli.ContainerKill(ctx, containerID, killSignal); err != nil {
		log.Fatal(err)
	}
}
