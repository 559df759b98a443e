// Command load-neighborhoods imports the neighborhood shapefile into
// PostGIS.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/somerville/nbhd-map/internal/cache"
	"github.com/somerville/nbhd-map/internal/config"
	"github.com/somerville/nbhd-map/internal/db"
	"github.com/somerville/nbhd-map/internal/layermap"
	"github.com/somerville/nbhd-map/internal/logger"
	"github.com/somerville/nbhd-map/internal/nbhd"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "load-neighborhoods",
	Short: "Load the neighborhood shapefile into PostGIS",
	Long: `Reads every polygon of the neighborhood shapefile, maps its OBJECTID,
NBHD, SHAPE_Area and SHAPE_Leng attributes onto the neighborhoods table and
stores the geometry in WGS84.

Settings come from flags, NBHD_* environment variables and the optional
nbhd.yaml config file, in that order.`,
	SilenceUsage: true,
	RunE:         runLoad,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (default: ./nbhd.yaml if present)")
	f.String("shapefile", "", "path to the .shp file")
	f.String("mapping", "", "YAML file mapping model fields to layer fields")
	f.Int("srid", 0, "SRID of the shapefile coordinates (0 reads the .prj file)")
	f.String("charset", "", "attribute encoding, overrides the .cpg file")
	f.Bool("strict", true, "abort without saving on the first invalid feature")
	f.Bool("verbose", true, "log every saved neighborhood")
	f.Bool("replace", false, "delete existing neighborhoods before saving")
	f.Int("batch-size", 0, "rows per INSERT")
	f.Int("progress", 0, "log progress every N features (0 disables)")
}

var flagKeys = map[string]string{
	"shapefile":  "loader.shapefile",
	"mapping":    "loader.mapping_file",
	"srid":       "loader.source_srid",
	"charset":    "loader.charset",
	"strict":     "loader.strict",
	"verbose":    "loader.verbose",
	"replace":    "loader.replace",
	"batch-size": "loader.batch_size",
	"progress":   "loader.progress",
}

func runLoad(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env.local")

	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	runCfg, err := layermap.NewConfig(cfg.Loader)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DatabaseURL, cfg.Log.SlowQuery, log)
	if err != nil {
		return err
	}
	if err := nbhd.Init(gdb); err != nil {
		return err
	}

	c := cache.Open(cfg.Redis, log)
	defer c.Close()

	sum, err := nbhd.Import(ctx, runCfg, nbhd.NewStore(gdb), c, log)
	if err != nil {
		return err
	}

	proj := ".prj"
	if sum.SourceSRID != 0 {
		proj = fmt.Sprintf("EPSG:%d", sum.SourceSRID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: read %d, saved %d, skipped %d from %s (%s, %s) in %s\n",
		sum.ID, sum.Read, sum.Saved, sum.Skipped, sum.Source, proj, sum.Charset, sum.Duration().Round(time.Millisecond))
	return nil
}
