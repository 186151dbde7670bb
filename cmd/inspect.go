package cmd

import (
	"context"
	"fmt"
	"github.com/denis-ismailaj/wharf/internal"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"sort"
	"strings"
)

func init() {
	RootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <service>",
	Short: "Displays the state, health and published ports of a service's container.",
	Args:  cobra.ExactArgs(1),
	Run:   inspect,
}

func inspect(_ *cobra.Command, args []string) {
	// Create Docker client
	cli, err := internal.NewDockerClient()
	if err != nil {
		log.Fatal(err)
	}
	defer cli.Close()

	ctx := context.Background()

	// Name of the service to inspect
	name := args[0]

	containerID, err := findServiceContainer(ctx, cli, name)
	if err != nil {
		log.Fatal(err)
	}

	inspect, err := cli.ContainerInspect(ctx, containerID)
	if err != nil {
		log.Fatal(err)
	}

	// Using fmt here because logrus writes to stderr, and this output is meant for stdout.
	fmt.Printf("service:   %s\n", name)
	fmt.Printf("container: %s (%s)\n", strings.TrimPrefix(inspect.Name, "/"), inspect.ID[:12])
	fmt.Printf("image:     %s\n", inspect.Config.Image)
	if st := inspect.State; st != nil {
		fmt.Printf("state:     %s\n", st.Status)
		if !st.Running {
			fmt.Printf("exit code: %d\n", st.ExitCode)
		}
		if st.Health != nil {
			fmt.Printf("health:    %s (failing streak %d)\n", st.Health.Status, st.Health.FailingStreak)
		}
	}

	if inspect.NetworkSettings == nil {
		return
	}
	var ports []string
	for port, bindings := range inspect.NetworkSettings.Ports {
		for _, b := range bindings {
			ports = append(ports, fmt.Sprintf("%s:%s->%s", b.HostIP, b.HostPort, port))
		}
	}
	sort.Strings(ports)
	for _, p := range ports {
		fmt.Printf("port:      %s\n", p)
	}
}

// findServiceContainer finds the container of a service of the current project.
// Stopped containers are included.
func findServiceContainer(ctx context.Context, cli *client.Client, service string) (string, error) {
	list, err := cli.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", internal.ProjectLabel, settings.Project)),
			filters.Arg("label", fmt.Sprintf("%s=%s", internal.ServiceLabel, service)),
		),
	})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("container for service %s not found", service)
	}
	return list[0].ID, nil
}
