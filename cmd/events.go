package cmd

import (
	"context"
	"fmt"
	"github.com/denis-ismailaj/wharf/internal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"os"
	"text/tabwriter"
	"time"
)

var (
	eventsRun     string
	eventsAllRuns bool
	eventsService string
	eventsLimit   int
)

func init() {
	eventsCmd.Flags().StringVar(&eventsRun, "run", "", "Show events of this run (default: the latest run).")
	eventsCmd.Flags().BoolVar(&eventsAllRuns, "all-runs", false, "Show events of every run.")
	eventsCmd.Flags().StringVar(&eventsService, "service", "", "Only show events of this service.")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 100, "Show at most this many of the latest events.")
	RootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Shows the recorded lifecycle events of services.",
	Args:  cobra.NoArgs,
	Run:   events,
}

func events(*cobra.Command, []string) {
	store, err := internal.NewStore(settings.StatePath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	filter := internal.EventFilter{RunID: eventsRun, Service: eventsService, Limit: eventsLimit}
	if filter.RunID == "" && !eventsAllRuns {
		filter.RunID, err = store.LastRun(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if filter.RunID == "" {
			log.Info("No events recorded yet.")
			return
		}
	}

	list, err := store.Events(ctx, filter)
	if err != nil {
		log.Fatal(err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRUN\tSERVICE\tEVENT\tDETAIL")
	for _, ev := range list {
		fmt.Fprintf(tw, "%s\t%.8s\t%s\t%s\t%s\n",
			ev.At.Format(time.RFC3339), ev.RunID, ev.Service, ev.Kind, ev.Detail)
	}
	_ = tw.Flush()
}
