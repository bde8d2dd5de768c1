package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"evcal/internal/config"
	"evcal/internal/dateutil"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/scheduler"
	"evcal/internal/store"
	"evcal/internal/web"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if listen != "" {
				conf.Listen = listen
			}

			engine, err := newEngine(conf)
			if err != nil {
				return err
			}

			appLog.Info("evcal starting",
				"version", version,
				"listen", conf.Listen,
				"timezone", conf.Timezone,
				"refresh", conf.RefreshCron,
				"max_repeats", conf.MaxRepeats,
				"events_file", conf.EventsFile,
				"ics_count", len(conf.ICS),
			)

			index := store.New()
			refresher := scheduler.NewRefresher(conf, engine, ics.NewFetcher(conf.CacheDir, nil), index)
			sched := scheduler.New(conf.RefreshCron, engine.Location(), refresher)
			server := web.NewServer(conf, engine, index, refresher)

			ctx, cancel := signalContext()
			defer cancel()

			errCh := make(chan error, 2)
			go func() { errCh <- sched.Start(ctx) }()
			go func() { errCh <- server.ListenAndServe(ctx) }()

			// The first failure (or the signal) stops both.
			err = <-errCh
			cancel()
			if err2 := <-errCh; err == nil {
				err = err2
			}
			appLog.Info("evcal exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newExpandCmd(flags *rootFlags) *cobra.Command {
	var (
		eventsFile string
		format     string
		series     bool
		writeIDs   bool
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand an event catalog and print the occurrences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if eventsFile == "" {
				eventsFile = conf.EventsFile
			}

			engine, err := newEngine(conf)
			if err != nil {
				return err
			}
			events, err := config.LoadCatalog(eventsFile)
			if err != nil {
				return err
			}
			// Generated IDs depend on list position; pin them so reordering
			// the catalog keeps feed UIDs stable.
			if writeIDs {
				if err := config.SaveCatalog(eventsFile, events); err != nil {
					return err
				}
				appLog.Info("catalog ids written", "path", eventsFile, "events", len(events))
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				batch := engine.ExpandAll(events)
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"occurrences":      batch.Occurrences,
					"truncated_events": batch.TruncatedEvents,
				})
			case "ics":
				opts := ics.FeedOptions{Name: conf.FeedName, Domain: conf.FeedDomain}
				if series {
					_, err = fmt.Fprint(out, ics.BuildSeriesFeed(engine, events, opts).Serialize())
					return err
				}
				_, err = fmt.Fprint(out, ics.BuildFeed(engine.ExpandAll(events).Occurrences, opts).Serialize())
				return err
			default:
				return errors.Errorf("unknown format %q (want json or ics)", format)
			}
		},
	}
	cmd.Flags().StringVar(&eventsFile, "events", "", "Event catalog (defaults to events_file from config)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or ics")
	cmd.Flags().BoolVar(&series, "series", false, "With --format ics, emit RRULE series where possible")
	cmd.Flags().BoolVar(&writeIDs, "write-ids", false, "Write generated event IDs back into the catalog")
	return cmd
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var (
		outPath string
		days    int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run one refresh and write the iCalendar feed to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			engine, err := newEngine(conf)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = conf.FeedHorizonDays
			}

			index := store.New()
			refresher := scheduler.NewRefresher(conf, engine, ics.NewFetcher(conf.CacheDir, nil), index)

			ctx, cancel := signalContext()
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, 2*time.Minute)
			defer cancelTimeout()

			if _, err := refresher.Refresh(ctx); err != nil {
				return err
			}

			loc := engine.Location()
			today := dateutil.Truncate(time.Now().In(loc))
			from := midnight(dateutil.AddDays(today, -1), loc)
			to := midnight(dateutil.AddDays(today, days), loc)

			occ := index.Range(from, to, store.Filter{})
			body := ics.BuildFeed(occ, ics.FeedOptions{Name: conf.FeedName, Domain: conf.FeedDomain}).Serialize()

			if err := os.WriteFile(outPath, []byte(body), 0o644); err != nil {
				return errors.Wrapf(err, "write %s", outPath)
			}
			appLog.Info("feed exported", "path", outPath, "occurrences", len(occ))
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "feed.ics", "Output file")
	cmd.Flags().IntVar(&days, "days", 0, "Days ahead to include (defaults to feed_horizon_days)")
	return cmd
}

func midnight(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}
