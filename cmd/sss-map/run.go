package main

import (
	"context"
	"fmt"
	"os"

	"github.com/banshee-data/sidescan.report/internal/config"
	"github.com/banshee-data/sidescan.report/internal/monitoring"
	"github.com/banshee-data/sidescan.report/internal/sonar/elevation"
	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
	"github.com/banshee-data/sidescan.report/internal/sonar/patch"
	"github.com/banshee-data/sidescan.report/internal/sonar/render"
	"github.com/banshee-data/sidescan.report/internal/sonar/survey"
	"github.com/banshee-data/sidescan.report/internal/sonardb"
)

// options are the resolved inputs of one run. Zero values fall back to the
// mapping config.
type options struct {
	PingsPath     string
	TilesPath     string
	ElevationPath string
	DBPath        string
	RenderDir     string
	PatchSize     float64
	Resolution    float64
}

// summary reports what a run produced.
type summary struct {
	Pings    int
	Images   int
	ImageIDs []string
	Patches  int
	Rendered int
	Survey   survey.Stats
	Patch    patch.Stats
}

func (o options) resolve(cfg *config.MappingConfig) options {
	if o.DBPath == "" {
		o.DBPath = cfg.GetDatabasePath()
	}
	if o.RenderDir == "" {
		o.RenderDir = cfg.GetRenderDir()
	}
	if o.PatchSize == 0 {
		o.PatchSize = cfg.GetPatchSize()
	}
	if o.Resolution == 0 {
		o.Resolution = cfg.GetResolution()
	}
	return o
}

func run(ctx context.Context, cfg *config.MappingConfig, opts options) (*summary, error) {
	opts = opts.resolve(cfg)
	if opts.PingsPath == "" || opts.TilesPath == "" {
		return nil, fmt.Errorf("both a ping stream and a tile list are required")
	}

	tf, err := os.Open(opts.TilesPath)
	if err != nil {
		return nil, fmt.Errorf("open tiles: %w", err)
	}
	tiles, err := readTiles(tf)
	tf.Close()
	if err != nil {
		return nil, err
	}

	sv, err := survey.New(tiles, opts.Resolution)
	if err != nil {
		return nil, err
	}

	done := monitoring.Timed("accumulate")
	pf, err := os.Open(opts.PingsPath)
	if err != nil {
		return nil, fmt.Errorf("open pings: %w", err)
	}
	n, err := readPings(pf, sv.Add)
	pf.Close()
	if err != nil {
		return nil, err
	}
	results, st, err := sv.Finish()
	if err != nil {
		return nil, err
	}
	done()

	sum := &summary{Pings: n, Images: len(results), Survey: st}
	monitoring.Logf("accumulated %d pings into %d images (%d empty tiles, %d skipped tiles)",
		n, len(results), st.EmptyTiles, st.SkippedTiles)

	if err := cacheImages(ctx, cfg, opts.DBPath, results, sum); err != nil {
		return nil, err
	}

	if opts.ElevationPath != "" {
		if err := extractPatches(opts, results, sum); err != nil {
			return nil, err
		}
	}

	if opts.RenderDir != "" {
		if err := renderImages(opts.RenderDir, results, sum); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func cacheImages(ctx context.Context, cfg *config.MappingConfig, dbPath string, results []survey.Result, sum *summary) error {
	db, err := sonardb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.GetCacheTimeout())
	defer cancel()

	store := sonardb.NewMapImageStore(db)
	for _, r := range results {
		id, err := store.Insert(ctx, cfg.GetSurveyID(), r.Tile.ID, r.Image)
		if err != nil {
			return fmt.Errorf("cache tile %q: %w", r.Tile.ID, err)
		}
		sum.ImageIDs = append(sum.ImageIDs, id)
	}
	monitoring.Logf("cached %d images for survey %q in %s", len(results), cfg.GetSurveyID(), dbPath)
	return nil
}

func extractPatches(opts options, results []survey.Result, sum *summary) error {
	f, err := os.Open(opts.ElevationPath)
	if err != nil {
		return fmt.Errorf("open elevation: %w", err)
	}
	elev, err := elevation.ReadESRIASCII(f)
	f.Close()
	if err != nil {
		return err
	}

	images := make([]*grid.MapImage, len(results))
	for i, r := range results {
		images[i] = r.Image
	}
	defer monitoring.Timed("patches")()
	views, st, err := patch.ConvertMapsToPatches(images, elev, opts.PatchSize)
	if err != nil {
		return err
	}
	for i, vs := range views {
		monitoring.Logf("tile %q: %d patches", results[i].Tile.ID, len(vs))
		sum.Patches += len(vs)
	}
	sum.Patch = st
	return nil
}

func renderImages(dir string, results []survey.Result, sum *summary) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create render dir: %w", err)
	}
	for _, r := range results {
		p, err := render.IntensityPlot(r.Image, r.Tile.ID)
		if err != nil {
			monitoring.Logf("skipping render of tile %q: %v", r.Tile.ID, err)
			continue
		}
		path, err := render.OutputPath(dir, r.Tile.ID, "")
		if err != nil {
			return err
		}
		if err := render.SavePNG(p, path); err != nil {
			return err
		}
		sum.Rendered++

		if wp, err := render.WaterfallPlot(r.Image, r.Tile.ID+" waterfall"); err == nil {
			path, err := render.OutputPath(dir, r.Tile.ID, "_waterfall")
			if err != nil {
				return err
			}
			if err := render.SavePNG(wp, path); err != nil {
				return err
			}
		}
	}
	return nil
}
