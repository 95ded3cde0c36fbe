package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-rec/internal/geo"
	"github.com/joeblew999/plat-rec/internal/logging"
	"github.com/joeblew999/plat-rec/internal/server"
	"github.com/joeblew999/plat-rec/internal/service"
)

// Options defines all CLI flags and env vars for the rec server.
// Flags: --host, --port, --data-dir, --config, --templates, --seed, --debug
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir   string `doc:"Directory for the DuckDB database; empty for in-memory" default:".data"`
	Config    string `doc:"Facet and tile config file (YAML)" default:"rec.yaml"`
	Templates string `doc:"Directory containing fragments/ to use instead of the embedded templates"`
	Seed      string `doc:"Seed file (YAML) loaded at startup"`
	Debug     bool   `doc:"Enable debug logging"`
}

func newServer(ctx context.Context, opts *Options, log *zap.Logger) (*server.Server, error) {
	return server.New(ctx, server.Config{
		Host:        opts.Host,
		Port:        strconv.Itoa(opts.Port),
		DataDir:     opts.DataDir,
		ConfigPath:  opts.Config,
		TemplateDir: opts.Templates,
	}, log)
}

func fatal(format string, args ...any) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf(format, args...)))
	os.Exit(1)
}

func seedFile(ctx context.Context, srv *server.Server, path string) (service.SeedStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return service.SeedStats{}, err
	}
	defer f.Close()
	return service.Seed(ctx, srv.Services().Rec, f)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logging.Must(opts.Debug)
			defer log.Sync()

			srv, err := newServer(ctx, opts, log)
			if err != nil {
				fatal("Error starting server: %v", err)
			}
			defer srv.Close()

			if opts.Seed != "" {
				stats, err := seedFile(ctx, srv, opts.Seed)
				if err != nil {
					fatal("Error seeding %s: %v", opts.Seed, err)
				}
				log.Info("seeded", zap.String("file", opts.Seed),
					zap.Int("created", stats.Created), zap.Int("updated", stats.Updated))
			}

			printBanner(opts)
			if err := srv.Run(ctx); err != nil {
				fatal("Server error: %v", err)
			}
		})
	})

	cli.Root().Use = "rec"
	cli.Root().Short = "Recreation sites and trails search and map service"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			memOpts := *opts
			memOpts.DataDir = ""
			srv, err := newServer(cmd.Context(), &memOpts, zap.NewNop())
			if err != nil {
				fatal("Error: %v", err)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fatal("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// seed subcommand: load lookups and resources into the database
	cli.Root().AddCommand(&cobra.Command{
		Use:   "seed FILE",
		Short: "Load lookups and recreation resources from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(cmd.Context(), opts, logging.Must(opts.Debug))
			if err != nil {
				fatal("Error: %v", err)
			}
			defer srv.Close()

			stats, err := seedFile(cmd.Context(), srv, args[0])
			if err != nil {
				fatal("Error seeding %s: %v", args[0], err)
			}
			printSeedStats(args[0], opts.DataDir, stats)
		}),
	})

	// project subcommand: reproject a BC Albers coordinate
	cli.Root().AddCommand(&cobra.Command{
		Use:   "project X Y",
		Short: "Convert a BC Albers (EPSG:3005) coordinate to lon/lat and Web Mercator",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			x, errX := strconv.ParseFloat(args[0], 64)
			y, errY := strconv.ParseFloat(args[1], 64)
			if errX != nil || errY != nil {
				fatal("X and Y must be numbers")
			}
			p := orb.Point{x, y}
			printProjection(p, geo.BCAlbers.ToWGS84(p), geo.BCAlbers.ToMercator(p))
		},
	})

	// tiles subcommand: write every vector tile to a PMTiles archive
	cli.Root().AddCommand(&cobra.Command{
		Use:   "tiles OUTPUT",
		Short: "Export resource geometries as a PMTiles archive",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(cmd.Context(), opts, logging.Must(opts.Debug))
			if err != nil {
				fatal("Error: %v", err)
			}
			defer srv.Close()

			f, err := os.Create(args[0])
			if err != nil {
				fatal("Error: %v", err)
			}
			n, err := srv.Tiles().Export(cmd.Context(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(args[0])
				fatal("Error exporting tiles: %v", err)
			}
			fmt.Println(okStyle.Render(fmt.Sprintf("Wrote %d tiles to %s", n, args[0])))
		}),
	})

	cli.Run()
}
