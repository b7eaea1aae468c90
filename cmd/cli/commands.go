package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cxd309/junction-walk/internal/config"
	"github.com/cxd309/junction-walk/internal/engine"
	"github.com/cxd309/junction-walk/internal/graph"
	"github.com/cxd309/junction-walk/internal/logging"
	"github.com/cxd309/junction-walk/internal/server"
	"github.com/cxd309/junction-walk/internal/tracecache"
)

// cli holds the flag values shared by the subcommands.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	logger     *slog.Logger

	traceFile string
	speed     float64
	agents    int
	seed      uint64
	runTime   time.Duration
	timeStep  time.Duration
	refLat    float64
	refLon    float64
	watch     bool

	export string
	addr   string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "junction-walk",
		Short:         "Pedestrian mobility over junction graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Config{
				Level:   c.logLevel,
				Format:  logging.Format(c.logFormat),
				Output:  cmd.ErrOrStderr(),
				Service: "junction-walk",
			})
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML run configuration")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "text or json")

	root.AddCommand(c.runCmd(), c.inspectCmd(), c.serveCmd())
	return root
}

func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [input.json]",
		Short: "Run a simulation and print the log as JSON",
		Long: `Run reads a SimulationInput JSON from the file argument, or from stdin
when no argument is given. With --config or --trace it builds the run from the
YAML configuration instead, with flags overriding file values.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.configPath != "" || cmd.Flags().Changed("trace") {
				return c.runConfig(cmd)
			}
			return c.runInput(cmd, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&c.traceFile, "trace", "t", "", "trace file to walk")
	f.Float64Var(&c.speed, "speed", 0, "walking speed in m/s")
	f.IntVarP(&c.agents, "agents", "n", 0, "number of walkers")
	f.Uint64Var(&c.seed, "seed", 0, "random seed")
	f.DurationVar(&c.runTime, "run-time", 0, "simulated duration")
	f.DurationVar(&c.timeStep, "time-step", 0, "log interval")
	f.Float64Var(&c.refLat, "ref-lat", 0, "projection reference latitude")
	f.Float64Var(&c.refLon, "ref-lon", 0, "projection reference longitude")
	f.BoolVar(&c.watch, "watch", false, "reparse the trace if it changes on disk")
	return cmd
}

func (c *cli) runInput(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	var input engine.SimulationInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("invalid input JSON: %w", err)
	}
	log, err := engine.Simulate(cmd.Context(), input, c.logger)
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), log, false)
}

func (c *cli) runConfig(cmd *cobra.Command) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := engine.RunConfig(cmd.Context(), cfg, c.logger)
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), log, false)
}

// loadConfig reads --config when given and applies the flags the user set.
func (c *cli) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return config.Config{}, err
		}
	}

	f := cmd.Flags()
	if f.Changed("trace") {
		cfg.Mobility.TraceFile = c.traceFile
	}
	if f.Changed("speed") {
		cfg.Mobility.Speed = c.speed
	}
	if f.Changed("ref-lat") {
		cfg.Mobility.ReferenceLatitude = &c.refLat
	}
	if f.Changed("ref-lon") {
		cfg.Mobility.ReferenceLongitude = &c.refLon
	}
	if f.Changed("watch") {
		cfg.Mobility.WatchTrace = c.watch
	}
	if f.Changed("agents") {
		cfg.Simulation.Agents = c.agents
	}
	if f.Changed("seed") {
		cfg.Simulation.Seed = c.seed
	}
	if f.Changed("run-time") {
		cfg.Simulation.RunTime = c.runTime
	}
	if f.Changed("time-step") {
		cfg.Simulation.TimeStep = c.timeStep
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (c *cli) inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <trace>",
		Short: "Report junction, edge and reachability statistics for a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := tracecache.New(tracecache.WithLogger(c.logger))
			if err != nil {
				return err
			}
			defer reg.Close()

			g, err := reg.GetFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.export != "" {
				if err := exportTrace(c.export, g); err != nil {
					return err
				}
				c.logger.Info("trace exported", "path", c.export, "junctions", g.Len(), "edges", g.Edges())
			}
			ps, _ := reg.ParseStats(args[0])
			return writeJSON(cmd.OutOrStdout(), server.GraphReport{
				Trace:  args[0],
				Report: graph.Analyze(g, 0),
				Parse:  ps,
				Cache:  reg.Stats(),
			}, true)
		},
	}
	cmd.Flags().StringVarP(&c.export, "export", "o", "", "write the trace back out with unresolved neighbors removed")
	return cmd
}

func exportTrace(path string, g *graph.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export: %w", err)
	}
	if err := graph.Write(f, g); err != nil {
		f.Close()
		return fmt.Errorf("writing export: %w", err)
	}
	return f.Close()
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation and inspection HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if c.configPath != "" {
				var err error
				if cfg, err = config.Load(c.configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = c.addr
			}
			if c.logLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			reg, err := tracecache.New(tracecache.WithLogger(c.logger), tracecache.WithWatch())
			if err != nil {
				return err
			}
			defer reg.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.Server, reg, c.logger)
		},
	}
	cmd.Flags().StringVar(&c.addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func serve(ctx context.Context, cfg config.ServerConfig, reg *tracecache.Registry, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(reg, cfg, server.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "trace_dir", cfg.TraceDir)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
