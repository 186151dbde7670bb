package cmd

import (
	"context"
	"errors"
	"github.com/denis-ismailaj/coordinator"
	"github.com/denis-ismailaj/wharf/internal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"os"
	"os/signal"
	"path"
	"syscall"
)

var (
	force    bool
	detach   bool
	profiles []string
	upCmd    = &cobra.Command{
		Use:   "up [service...]",
		Short: "Start the services in dependency order and supervise them.",
		Run:   up,
	}
)

func init() {
	upCmd.Flags().BoolVar(&force, "force", false, "Interrupt preceding wharf instances of this project.")
	upCmd.Flags().BoolVarP(&detach, "detach", "d", false, "Exit once the services are started instead of supervising them.")
	upCmd.Flags().StringSliceVar(&profiles, "profile", nil, "Also start services of this profile. Can be repeated.")
	RootCmd.AddCommand(upCmd)
}

func up(_ *cobra.Command, args []string) {
	if err := runUp(args); err != nil {
		log.Fatal(err)
	}
}

func runUp(targets []string) error {
	// Create main context with cancellation
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	// Handle signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		s := <-sigCh
		log.Errorf("terminating due to signal %v", s)
		cancelFn()
	}()

	// One queue per project, so runs of different projects don't wait on each other.
	dir := path.Join(os.TempDir(), "wharf", settings.Project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	coordinator := coordination.Coordinator{Dir: dir}

	// Create a wait file for this instance
	file, err := coordinator.CreateWaitFile()
	if err != nil {
		return err
	}
	defer os.Remove(file.Name())

	// Check if another instance has dethroned us.
	ownFileChan := make(chan error)
	ownWatcher := coordinator.WaitForFile(coordinator.FilePath, ownFileChan)
	defer ownWatcher.Close()
	go func() {
		<-ownFileChan
		log.Error("The wait file of this instance was forcibly removed. Quitting.")
		cancelFn()
	}()

	// Wait for preceding instances to quit or force them to quit.
	if force {
		log.Info("--force enabled, preceding instances will be removed.")
		if err := coordinator.CutInLine(); err != nil {
			return err
		}
	} else {
		coordinator.WaitInLine(ctx)
	}

	// Check if context has been cancelled.
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	log.Info("Starting wharf.")
	err = internal.StartWharf(ctx, settings, internal.UpOptions{
		Profiles: profiles,
		Targets:  targets,
		Detach:   detach,
	})
	// Interrupted starts are expected after a signal; anything else is reported.
	var remaining error
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, context.Canceled) {
			remaining = multierr.Append(remaining, e)
		}
	}
	return remaining
}
