package cmd

import (
	"fmt"
	"github.com/denis-ismailaj/wharf/internal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"strings"
)

var (
	configProfiles []string
	configCmd      = &cobra.Command{
		Use:   "config [service...]",
		Short: "Validates the descriptor and prints the order services would start in.",
		Run:   config,
	}
)

func init() {
	configCmd.Flags().StringSliceVar(&configProfiles, "profile", nil, "Also include services of this profile. Can be repeated.")
	RootCmd.AddCommand(configCmd)
}

func config(_ *cobra.Command, args []string) {
	levels, err := internal.Plan(settings, configProfiles, args)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("project %s, network %s\n", settings.Project, settings.NetworkName())
	for i, level := range levels {
		for _, s := range level {
			health := "none"
			if hc := s.HealthCheck; hc != nil {
				health = fmt.Sprintf("%q every %v, timeout %v, %d retries",
					strings.Join(hc.Test, " "), hc.Interval, hc.Timeout, hc.Retries)
			}
			fmt.Printf("%d  %-16s image=%s restart=%s health=%s\n", i+1, s.Name, s.Image, s.Restart, health)
			if len(s.DependsOn) > 0 {
				fmt.Printf("   %-16s depends on %s\n", "", strings.Join(s.DependsOn, ", "))
			}
		}
	}
}
