package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rwidmer/nasync/internal/actions"
	"github.com/rwidmer/nasync/internal/api"
	"github.com/rwidmer/nasync/internal/db"
	"github.com/rwidmer/nasync/internal/engine"
	"github.com/rwidmer/nasync/internal/probe"
	"github.com/rwidmer/nasync/internal/scheduler"
	"github.com/rwidmer/nasync/internal/transfer"
	"github.com/rwidmer/nasync/pkg/models"
	"github.com/rwidmer/nasync/pkg/utils"
	"github.com/rwidmer/nasync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	dbFlag := &cli.StringFlag{
		Name:  "db",
		Usage: "Path to the database file",
		Value: "nasync.db",
	}

	app := &cli.App{
		Name:                 "nasync",
		Usage:                "Mirror local folders to a NAS over rsync/ssh",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "serve",
				Usage: "Run the sync daemon with the HTTP API and scheduler",
				Flags: []cli.Flag{
					dbFlag,
					&cli.StringFlag{
						Name:  "addr",
						Usage: "HTTP listen address",
						Value: ":8080",
					},
				},
				Action: serve,
			},
			{
				Name:  "sync",
				Usage: "Run one sync session now",
				Flags: []cli.Flag{
					dbFlag,
					&cli.Int64Flag{
						Name:  "mapping",
						Usage: "Sync only this mapping id",
					},
				},
				Action: runSync,
			},
			{
				Name:   "status",
				Usage:  "Show NAS, scheduler and recent sync status",
				Flags:  []cli.Flag{dbFlag},
				Action: showStatus,
			},
			{
				Name:  "mapping",
				Usage: "Manage folder mappings",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Add a folder mapping",
						Flags: []cli.Flag{
							dbFlag,
							&cli.StringFlag{Name: "name", Usage: "Mapping name", Required: true},
							&cli.StringFlag{Name: "source", Usage: "Local source path", Required: true},
							&cli.StringFlag{Name: "dest", Usage: "Destination path on the NAS", Required: true},
							&cli.BoolFlag{Name: "delete-source", Usage: "Remove source files after a successful sync"},
							&cli.BoolFlag{Name: "disabled", Usage: "Create the mapping disabled"},
						},
						Action: addMapping,
					},
					{
						Name:   "list",
						Usage:  "List folder mappings",
						Flags:  []cli.Flag{dbFlag},
						Action: listMappings,
					},
					{
						Name:  "rm",
						Usage: "Delete a folder mapping",
						Flags: []cli.Flag{
							dbFlag,
							&cli.Int64Flag{Name: "id", Usage: "Mapping id", Required: true},
						},
						Action: removeMapping,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	prober := probe.New(exec.CommandContext)
	eng := engine.New(store, prober, transfer.New(exec.CommandContext), actions.New())
	sched := scheduler.New(eng, clockwork.NewRealClock())

	schedCfg, err := store.SchedulerConfig()
	if err != nil {
		return fmt.Errorf("failed to load scheduler config: %w", err)
	}
	sched.Apply(schedCfg)

	server := &http.Server{
		Addr:    c.String("addr"),
		Handler: api.New(store, eng, prober, sched).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("nasync listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runSync(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	eng := engine.NewDefault(store)

	var report *models.SessionReport
	if id := c.Int64("mapping"); id != 0 {
		report, err = eng.RunMapping(c.Context, id)
	} else {
		report, err = eng.RunAll(c.Context)
	}
	if err != nil {
		return err
	}

	if report.Status == models.SessionSkipped {
		fmt.Printf("Sync skipped: %s\n", report.Reason)
		return nil
	}
	for _, m := range report.Mappings {
		mark := "ok"
		if !m.Success {
			mark = "FAILED"
		}
		fmt.Printf("[%s] %s (id %d): %s\n", mark, m.Name, m.ID, m.Message)
	}
	fmt.Printf("Completed: %d/%d mappings succeeded\n", report.SuccessCount(), len(report.Mappings))
	return nil
}

func showStatus(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	nasCfg, err := store.NasConfig()
	if err != nil {
		return err
	}
	if nasCfg == nil {
		fmt.Println("NAS: not configured")
	} else {
		online := "offline"
		if probe.New(exec.CommandContext).IsReachable(c.Context, nasCfg.Hostname) {
			online = "online"
		}
		fmt.Printf("NAS: %s@%s:%d (%s)\n", nasCfg.SSHUser, nasCfg.Hostname, nasCfg.SSHPort, online)
	}

	schedCfg, err := store.SchedulerConfig()
	if err != nil {
		return err
	}
	if schedCfg.Enabled {
		fmt.Printf("Scheduler: every %d minutes\n", schedCfg.IntervalMinutes)
	} else {
		fmt.Println("Scheduler: disabled")
	}

	runs, err := store.RecentSyncRuns(5)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No sync history yet")
		return nil
	}
	fmt.Println("Recent runs:")
	for _, run := range runs {
		fmt.Printf("  %s  %-8s %s: %d files, %s in %s\n",
			humanize.Time(run.CompletedAt),
			run.Status,
			run.MappingName,
			run.FilesTransferred,
			utils.FormatSize(run.BytesTransferred),
			utils.FormatDuration(time.Duration(run.DurationSeconds*float64(time.Second))),
		)
	}
	return nil
}

func addMapping(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	id, err := store.CreateMapping(&models.FolderMapping{
		Name:            c.String("name"),
		SourcePath:      c.String("source"),
		DestinationPath: c.String("dest"),
		Enabled:         !c.Bool("disabled"),
		DeleteSource:    c.Bool("delete-source"),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapping: %w", err)
	}
	fmt.Printf("Mapping '%s' created with id %d\n", c.String("name"), id)
	return nil
}

func listMappings(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	mappings, err := store.Mappings()
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		fmt.Println("No mappings configured")
		return nil
	}
	for _, m := range mappings {
		state := "enabled"
		if !m.Enabled {
			state = "disabled"
		}
		last := "never synced"
		if m.LastSyncAt != nil {
			last = fmt.Sprintf("last sync %s (%s)", humanize.Time(*m.LastSyncAt), m.LastSyncStatus)
		}
		fmt.Printf("%d: %s  %s -> %s  [%s]  %s\n",
			m.ID, m.Name, m.SourcePath, m.DestinationPath, state, last)
	}
	return nil
}

func removeMapping(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if err := store.DeleteMapping(c.Int64("id")); err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	fmt.Printf("Mapping %d deleted\n", c.Int64("id"))
	return nil
}
