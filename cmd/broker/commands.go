package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/redbco/redb-broker/internal/server"
	"github.com/redbco/redb-broker/pkg/config"
	"github.com/redbco/redb-broker/pkg/logger"
	"github.com/redbco/redb-broker/pkg/provider"
)

// runtimeEnv is what every command needs: the parsed configuration, a
// logger and a provider loaded with the connection table.
type runtimeEnv struct {
	cfg      *config.File
	log      *logger.Logger
	provider *provider.Provider
	registry *prometheus.Registry
}

func loadRuntime(stderr bool) (*runtimeEnv, error) {
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log := logger.New("redb-broker", Version)
	if stderr {
		format := cfg.Log.Format
		if format == "" {
			format = logger.FormatText
		}
		log.SetOutput(os.Stderr, format)
	} else if cfg.Log.Format != "" {
		log.SetOutput(os.Stdout, cfg.Log.Format)
	}
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	if cfg.Log.File != "" {
		if err := log.OpenFile(cfg.Log.File); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := provider.New(
		provider.WithLogger(log),
		provider.WithDebug(cfg.Debug),
		provider.WithRegisterer(registry),
	)
	p.ApplyConfig(cfg.Connections)

	return &runtimeEnv{cfg: cfg, log: log, provider: p, registry: registry}, nil
}

// close shuts the provider down and releases the log file.
func (e *runtimeEnv) close() {
	e.provider.Shutdown()
	e.log.Close()
}

func setupCommands() {
	rootCmd.AddCommand(serveCmd(), callCmd(), queryCmd(), checkCmd())
}

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the broker over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(false)
			if err != nil {
				return err
			}
			defer env.close()

			if listen == "" {
				listen = env.cfg.Listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env.log.Info("Starting redb-broker %s with %d connections", Version, len(env.cfg.Connections))
			srv := server.NewServer(env.provider, env.log, env.registry)
			return srv.Serve(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :8080)")
	return cmd
}

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call NAME OPERATION [ARGS...]",
		Short: "Invoke one operation on a named connection and print the result as JSON",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(true)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			if env.provider.Get(ctx, args[0]) == nil {
				return fmt.Errorf("unknown connection %q", args[0])
			}

			callArgs := make([]interface{}, 0, len(args)-2)
			for _, a := range args[2:] {
				callArgs = append(callArgs, a)
			}
			result := env.provider.Call(ctx, args[0], args[1], callArgs...)
			return printJSON(cmd, map[string]interface{}{"result": result})
		},
	}
}

func queryCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "query NAME SQL",
		Short: "Run a statement with named parameters on a relational connection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bound, err := parseParams(params)
			if err != nil {
				return err
			}

			env, err := loadRuntime(true)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			if env.provider.Get(ctx, args[0]) == nil {
				return fmt.Errorf("unknown connection %q", args[0])
			}

			stmt := env.provider.Query(ctx, args[0], args[1], bound)
			if stmt == nil {
				return fmt.Errorf("query on %s failed, see log", args[0])
			}
			defer stmt.Close()

			rows, err := stmt.Fetch()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"rows":          rows,
				"rows_affected": stmt.RowsAffected(),
			})
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Named parameter as key=value (repeatable)")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect every configured name and report its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(true)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tENDPOINT\tDB\tSTATUS")

			names := env.provider.Names()
			wrappers := make([]*provider.AccessWrapper, len(names))
			for i, name := range names {
				wrappers[i] = env.provider.Get(ctx, name)
			}

			pings := make(map[string]error)
			for _, probe := range env.provider.Probe(ctx) {
				if probe.Name == "" {
					pings[probe.Connection.ID] = probe.Err
				}
			}

			failed := 0
			for _, wrapper := range wrappers {
				ep := wrapper.Endpoint()
				status := "ok"
				if conn := wrapper.Connection(); conn == nil {
					status = "unreachable"
					failed++
				} else if err := pings[conn.ID]; err != nil {
					status = "ping failed: " + err.Error()
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", wrapper.Name(), ep.Type, ep.Address(), ep.DatabaseName(), status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			stats := env.provider.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d names, %d physical connections\n", stats.Configured, stats.PhysicalConnections)
			if failed > 0 {
				return fmt.Errorf("%d of %d connections failed", failed, stats.Configured)
			}
			return nil
		},
	}
}

func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
