package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dotcommander/contentorc/internal/composer"
	"github.com/dotcommander/contentorc/internal/core"
	"github.com/dotcommander/contentorc/internal/router"
	"github.com/dotcommander/contentorc/internal/storage"
)

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var (
		req        requestFlags
		strategy   string
		progress   bool
		metricsOut string
		outDir     string
		outNaming  string
	)

	cmd := &cobra.Command{
		Use:   "compose <topic>",
		Short: "Generate content for a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			naming, err := storage.ParseNaming(outNaming)
			if err != nil {
				return err
			}

			var opts []composer.Option
			var events *core.ChannelObserver
			if progress {
				events = core.NewChannelObserver(128)
				opts = append(opts, composer.WithObserver(events))
			}

			return ctx.withComposer(func(comp *composer.Composer) error {
				var wg sync.WaitGroup
				done := make(chan struct{})
				if events != nil {
					wg.Add(1)
					go func() {
						defer wg.Done()
						printProgress(cmd.ErrOrStderr(), events, done)
					}()
				}

				request := req.request(args)
				res, err := comp.Compose(cmd.Context(), request, router.Options{Override: strategy})
				close(done)
				wg.Wait()
				if err != nil {
					return err
				}

				if metricsOut != "" {
					if err := prometheus.WriteToTextfile(metricsOut, comp.Gatherer()); err != nil {
						return fmt.Errorf("writing metrics: %w", err)
					}
				}
				if outDir != "" {
					dir, err := storage.NewArtifacts(storage.NewFileSystem(outDir), naming).Write(cmd.Context(), request, res)
					if err != nil {
						return fmt.Errorf("writing artifacts: %w", err)
					}
					ctx.logger.Info("artifacts written", "dir", filepath.Join(outDir, dir))
				}
				if err := writeJSON(cmd, storage.NewRecord(res)); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("request %s failed", res.RequestID)
				}
				return nil
			}, opts...)
		},
	}

	req.register(cmd)
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Force a strategy (legacy, new_architecture, hybrid)")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print stage progress to stderr")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics to this file after the run")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Write content and result artifacts below this directory")
	cmd.Flags().StringVar(&outNaming, "out-naming", "id", "Artifact directory naming (id, timestamp, descriptive)")
	return cmd
}

// printProgress drains events until done is closed and the buffer is empty.
func printProgress(w io.Writer, obs *core.ChannelObserver, done <-chan struct{}) {
	for {
		select {
		case e := <-obs.Events():
			printEvent(w, e)
		case <-done:
			for {
				select {
				case e := <-obs.Events():
					printEvent(w, e)
				default:
					return
				}
			}
		}
	}
}

func printEvent(w io.Writer, e core.Event) {
	switch e.Type {
	case core.EventStageSettled:
		s := e.Stage
		fmt.Fprintf(w, "%-9s %-9s %8s attempts=%d cache_hit=%t\n",
			s.Stage, s.State, s.Duration.Round(time.Millisecond), s.Attempts, s.CacheHit)
	case core.EventQualityWarning:
		fmt.Fprintf(w, "quality below threshold: original=%.2f regenerated=%.2f threshold=%.2f\n",
			e.Scores[0], e.Scores[1], e.Scores[2])
	default:
		fmt.Fprintf(w, "%s %s\n", e.Type, e.PlanID)
	}
}
