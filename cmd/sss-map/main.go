// Command sss-map accumulates a side-scan sonar ping stream into per-tile
// intensity maps, caches them and optionally cuts them into elevation-paired
// patches.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/sidescan.report/internal/config"
	"github.com/banshee-data/sidescan.report/internal/monitoring"
	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
	"github.com/banshee-data/sidescan.report/internal/sonar/patch"
	"github.com/banshee-data/sidescan.report/internal/sonar/survey"
	"github.com/banshee-data/sidescan.report/internal/version"
)

func main() {
	var opts options
	configPath := flag.String("config", "", "path to mapping config JSON (defaults apply when empty)")
	flag.StringVar(&opts.PingsPath, "pings", "", "JSON-lines ping stream")
	flag.StringVar(&opts.TilesPath, "tiles", "", "JSON tile list")
	flag.StringVar(&opts.ElevationPath, "elevation", "", "ESRI ASCII elevation grid; enables patch extraction")
	flag.StringVar(&opts.DBPath, "db", "", "map image cache (overrides config)")
	flag.StringVar(&opts.RenderDir, "render-dir", "", "write PNG heatmaps here (overrides config)")
	flag.Float64Var(&opts.PatchSize, "patch-size", 0, "patch edge in metres (overrides config)")
	flag.Float64Var(&opts.Resolution, "resolution", 0, "grid cells per metre (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := config.EmptyMappingConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadMappingConfig(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	setupLogging(cfg)

	sum, err := run(context.Background(), cfg, opts)
	if err != nil {
		log.Fatalf("sss-map: %v", err)
	}
	log.Printf("done: pings=%d images=%d patches=%d rendered=%d",
		sum.Pings, sum.Images, sum.Patches, sum.Rendered)
}

// setupLogging routes the ops stream of every package to stderr and enables
// the diag and trace streams when the config asks for them.
func setupLogging(cfg *config.MappingConfig) {
	monitoring.SetWriter(os.Stderr, "[sss-map] ")

	var diag, trace io.Writer
	if cfg.GetEnableDiagnostics() {
		diag = os.Stderr
	}
	if cfg.GetEnableTrace() {
		trace = os.Stderr
	}
	grid.SetLogWriters(os.Stderr, diag, trace)
	patch.SetLogWriters(os.Stderr, diag, trace)
	survey.SetLogWriters(os.Stderr, diag, nil)
}
