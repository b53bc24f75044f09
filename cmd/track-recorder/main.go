package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flybeeper/track-recorder/internal/engine"
	"github.com/flybeeper/track-recorder/internal/handler"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/internal/mqtt"
	"github.com/flybeeper/track-recorder/internal/repository"
)

var (
	// Version будет установлен при сборке через ldflags
	Version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "track-recorder",
		Short:         "Adaptive GPS route recorder",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newRoutesCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newOdometerCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recording engine, sensor bridge and local API",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	logger.WithField("version", Version).Info("Starting track recorder")

	var (
		eng        *engine.Engine
		mqttClient *mqtt.Client
	)
	if a.cfg.MQTT.Enabled {
		mqttClient, err = mqtt.NewClient(&a.cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT client: %w", err)
		}
		eng, err = a.newEngine(mqttClient, mqttClient, mqttClient)
	} else {
		logger.Warn("MQTT sensor bridge disabled, engine runs without sensors")
		eng, err = a.newEngine(idleDevice{}, idleDevice{}, idleDevice{})
	}
	if err != nil {
		return err
	}

	// Движок останавливается через Close после сохранения активного маршрута
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(context.Background()) }()

	if mqttClient != nil {
		mqttClient.SetSink(eng)
		if err := mqttClient.Connect(); err != nil {
			_ = eng.Close()
			return err
		}
		defer mqttClient.Disconnect()
		// Брокер не сообщает о разрешении, считаем геолокацию доступной
		eng.Publish(engine.AuthorizationEvent{Status: engine.AuthorizationAuthorized})
	}

	server := handler.NewServer(a.cfg, handler.Dependencies{
		Routes:   a.manager,
		Recorder: eng,
		Settings: a.settings,
		Points:   eng,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.WithError(err).Error("HTTP server failed")
	case err := <-engineDone:
		logger.WithError(err).Error("Engine stopped unexpectedly")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}

	// Незавершенная запись сохраняется, чтобы не потерять точки
	if a.manager.IsRecording() {
		if _, err := eng.EndRoute(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to save active route on shutdown")
		}
	}
	_ = eng.Close()

	logger.Info("Track recorder stopped gracefully")
	return nil
}

func newRoutesCmd() *cobra.Command {
	routes := &cobra.Command{Use: "routes", Short: "Inspect stored routes"}

	var cell string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored routes, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			units := a.settings.Current().Units
			out := cmd.OutOrStdout()
			count := 0
			for _, r := range a.manager.Routes() {
				if !r.PassesThrough(cell) {
					continue
				}
				count++
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%.2f\t%s\n",
					r.ID, r.StartDate.Local().Format("2006-01-02 15:04"), r.Name,
					units.LongDistance(r.Distance), r.ActivityType)
			}
			if count == 0 {
				_, _ = fmt.Fprintln(out, "no routes")
			}
			return nil
		},
	}
	list.Flags().StringVar(&cell, "cell", "", "only routes passing through this geohash cell")

	var units string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show route summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, a, err := loadRoute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			u := a.settings.Current().Units
			if units != "" {
				u = models.ParseUnits(units)
			}
			summary := route.Summary()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"id":            route.ID,
				"name":          route.Name,
				"description":   route.Description,
				"activity":      route.ActivityType.String(),
				"start_date":    route.StartDate,
				"end_date":      route.EndDate,
				"points":        summary.PointCount,
				"distance":      u.LongDistance(route.Distance),
				"units":         u,
				"elapsed":       summary.Elapsed.String(),
				"average_speed": summary.AverageSpeedKmh,
				"max_speed":     summary.MaxSpeedKmh,
				"start_cell":    summary.StartCell,
				"end_cell":      summary.EndCell,
			})
		},
	}
	show.Flags().StringVar(&units, "units", "", "metric|imperial (default from settings)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, a, err := loadRoute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager.DeleteRoute(cmd.Context(), route.ID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%s)\n", route.ID, route.Name)
			return nil
		},
	}

	routes.AddCommand(list, show, del)
	return routes
}

func newImportCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import-gpx <file>",
		Short: "Import a GPX file as a stored route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			route, err := a.manager.ImportGPX(cmd.Context(), f, name)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s) points=%d\n", route.Name, route.ID, len(route.Points))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "route name (default from GPX)")
	return cmd
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export-gpx <id>",
		Short: "Export a stored route as GPX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, a, err := loadRoute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return repository.ExportGPX(w, route)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newOdometerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "odometer",
		Short: "Print total recorded distance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			units := a.settings.Current().Units
			suffix := "km"
			if units == models.UnitsImperial {
				suffix = "mi"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%.2f %s\n", units.LongDistance(a.manager.Odometer()), suffix)
			return nil
		},
	}
}

func loadRoute(ctx context.Context, rawID string) (*models.Route, *app, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid route id %q: %w", rawID, err)
	}
	a, err := loadApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	route, err := a.manager.Route(id)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return route, a, nil
}
