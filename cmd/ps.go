package cmd

import (
	"context"
	"fmt"
	"github.com/denis-ismailaj/wharf/internal"
	"github.com/docker/docker/api/types"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

func init() {
	RootCmd.AddCommand(psCmd)
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "Lists the containers of the project.",
	Args:  cobra.NoArgs,
	Run:   ps,
}

func ps(*cobra.Command, []string) {
	cli, err := internal.NewDockerClient()
	if err != nil {
		log.Fatal(err)
	}
	defer cli.Close()

	containers, err := cli.ContainerList(context.Background(), types.ContainerListOptions{
		All:     true,
		Filters: internal.ProjectFilter(settings.Project),
	})
	if err != nil {
		log.Fatal(err)
	}
	sort.Slice(containers, func(i, j int) bool {
		return containers[i].Labels[internal.ServiceLabel] < containers[j].Labels[internal.ServiceLabel]
	})

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tCONTAINER\tIMAGE\tSTATUS\tPORTS")
	for _, c := range containers {
		var ports []string
		for _, p := range c.Ports {
			if p.PublicPort == 0 {
				continue
			}
			ports = append(ports, fmt.Sprintf("%d->%d/%s", p.PublicPort, p.PrivatePort, p.Type))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.Labels[internal.ServiceLabel], c.ID[:12], c.Image, c.Status, strings.Join(ports, ", "))
	}
	_ = tw.Flush()
}
