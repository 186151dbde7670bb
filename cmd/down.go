package cmd

import (
	"context"
	"github.com/denis-ismailaj/wharf/internal"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	allProjects bool
)

func init() {
	downCmd.Flags().BoolVar(&allProjects, "all-projects", false, "Remove resources of every project wharf started, using the resource label.")
	RootCmd.AddCommand(downCmd)
}

var downCmd = &cobra.Command{
	Use:   "down",
	Args:  cobra.NoArgs,
	Short: "Removes all containers and networks created for the project.",
	Run:   down,
}

func down(*cobra.Command, []string) {
	// Create Docker client
	cli, err := internal.NewDockerClient()
	if err != nil {
		log.Fatal(err)
	}
	defer cli.Close()

	ctx := context.Background()

	labelFilter := internal.ProjectFilter(settings.Project)
	if allProjects {
		labelFilter = filters.NewArgs(filters.Arg("label", settings.Label))
	}

	// Find and remove containers
	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: labelFilter})
	if err != nil {
		log.Fatal(err)
	}
	for _, container := range containers {
		log.Infof("Removing container %s.", container.Labels[internal.ServiceLabel])
		err := cli.ContainerRemove(ctx, container.ID, types.ContainerRemoveOptions{Force: true})
		if err != nil {
			log.Fatal(err)
		}
	}

	// Find and remove networks
	networks, err := cli.NetworkList(ctx, types.NetworkListOptions{Filters: labelFilter})
	if err != nil {
		log.Fatal(err)
	}
	for _, network := range networks {
		log.Infof("Removing network %s.", network.Name)
		err := cli.NetworkRemove(ctx, network.ID)
		if err != nil {
			log.Fatal(err)
		}
	}
}
