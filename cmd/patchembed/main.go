package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/slidekit/patchembed/internal/config"
	"github.com/slidekit/patchembed/pkg/embed"
	"github.com/slidekit/patchembed/pkg/extract"
	"github.com/slidekit/patchembed/pkg/pyramid"
	"github.com/slidekit/patchembed/pkg/store"
	"github.com/slidekit/patchembed/pkg/tiling"
)

func main() {
	app := &cli.App{
		Name:  "patchembed",
		Usage: "Compute patch embeddings of multi-resolution pyramid images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "embed",
				Usage:  "Tile an image, embed every patch and persist the embedding canvas",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to a JSON configuration file",
					},
					&cli.StringSliceFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Level raster files, finest first (repeat for multi-level input)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "synthesize-levels",
						Usage: "Build this many pyramid levels from a single input file",
					},
					&cli.Float64Flag{
						Name:  "objective-power",
						Usage: "Native objective power of the scan (metadata)",
					},
					&cli.Float64Flag{
						Name:  "mpp-x",
						Usage: "Microns per pixel along x at level 0 (metadata)",
					},
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to the BadgerDB output container",
					},
					&cli.BoolFlag{
						Name:  "in-memory",
						Usage: "Keep outputs in memory (dry run)",
					},
					&cli.StringFlag{
						Name:    "model",
						Aliases: []string{"m"},
						Usage:   "Feature extractor name (dummy, stats, ollama/<model>)",
					},
					&cli.IntFlag{
						Name:  "patch-width",
						Usage: "Patch width in pixels at the target magnification",
					},
					&cli.IntFlag{
						Name:  "level",
						Usage: "Pyramid level to extract from (-1 resolves it from magnification)",
						Value: extract.LevelUnset,
					},
					&cli.Float64Flag{
						Name:  "magnification",
						Usage: "Target magnification (0 disables magnification resolution)",
					},
					&cli.IntFlag{
						Name:  "overlap",
						Usage: "Overlap between neighbouring patches in pixels",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of patches per inference batch",
					},
					&cli.StringFlag{
						Name:  "device",
						Usage: "Compute target handed to the model",
					},
					&cli.StringFlag{
						Name:  "preview",
						Usage: "Write a grayscale preview of one canvas channel to this file",
					},
					&cli.IntFlag{
						Name:  "preview-channel",
						Usage: "Canvas channel rendered into the preview",
					},
				},
			},
			{
				Name:   "grid",
				Usage:  "Print the tiling of an extent as GeoJSON",
				Action: gridCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "width", Required: true, Usage: "Extent width in pixels"},
					&cli.IntFlag{Name: "height", Required: true, Usage: "Extent height in pixels"},
					&cli.IntFlag{Name: "patch-width", Required: true, Usage: "Patch width in pixels"},
					&cli.IntFlag{Name: "overlap", Usage: "Overlap between neighbouring patches in pixels"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
				},
			},
			{
				Name:   "init-config",
				Usage:  "Write a default configuration file",
				Action: initConfigCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Where to write the configuration",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", c.String("log-level"))
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if c.IsSet("config") {
		loaded, err := config.LoadFromFile(c.String("config"))
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("model") {
		cfg.Embedding.Model = c.String("model")
	}
	if c.IsSet("patch-width") {
		cfg.Embedding.PatchWidth = c.Int("patch-width")
	}
	if c.IsSet("level") {
		cfg.Embedding.Level = c.Int("level")
	}
	if c.IsSet("magnification") {
		cfg.Embedding.Magnification = c.Float64("magnification")
	}
	if c.IsSet("overlap") {
		cfg.Embedding.Overlap = c.Int("overlap")
	}
	if c.IsSet("batch-size") {
		cfg.Embedding.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("device") {
		cfg.Embedding.Device = c.String("device")
	}
	if c.IsSet("synthesize-levels") {
		cfg.Pyramid.SynthesizeLevels = c.Int("synthesize-levels")
	}
	if c.IsSet("objective-power") {
		cfg.Pyramid.ObjectivePower = c.Float64("objective-power")
	}
	if c.IsSet("mpp-x") {
		cfg.Pyramid.MPPX = c.Float64("mpp-x")
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("in-memory") {
		cfg.Store.InMemory = c.Bool("in-memory")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func embedCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	meta := pyramid.Metadata{
		ObjectivePower: cfg.Pyramid.ObjectivePower,
		MPPX:           cfg.Pyramid.MPPX,
	}

	inputs := c.StringSlice("input")
	var pyr *pyramid.Pyramid
	if len(inputs) == 1 && cfg.Pyramid.SynthesizeLevels > 1 {
		base, err := pyramid.LoadImage(inputs[0])
		if err != nil {
			return err
		}
		pyr, err = pyramid.Synthesize(base, cfg.Pyramid.SynthesizeLevels, meta)
		if err != nil {
			return err
		}
	} else {
		pyr, err = pyramid.Load(inputs, meta)
		if err != nil {
			return err
		}
	}

	var st store.Store
	if cfg.Store.InMemory {
		st = store.NewMemory()
	} else {
		st, err = store.OpenBadger(cfg.Store.Path, false)
		if err != nil {
			return err
		}
	}
	defer st.Close()

	assembler, err := embed.NewAssembler(st)
	if err != nil {
		return err
	}
	defer assembler.Close()

	canvas, err := assembler.Run(c.Context, pyr, embed.RunConfig{
		Model:         cfg.Embedding.Model,
		PatchWidth:    cfg.Embedding.PatchWidth,
		Level:         cfg.Embedding.Level,
		Magnification: cfg.Embedding.Magnification,
		Overlap:       cfg.Embedding.Overlap,
		BatchSize:     cfg.Embedding.BatchSize,
		Device:        cfg.Embedding.Device,
	})
	if err != nil {
		return err
	}

	if preview := c.String("preview"); preview != "" {
		img, err := canvas.ChannelImage(c.Int("preview-channel"))
		if err != nil {
			return err
		}
		if err := pyramid.SaveImage(img, preview, 90); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
	}
	return nil
}

func gridCommand(c *cli.Context) error {
	grid, err := tiling.Build(c.Int("width"), c.Int("height"), c.Int("patch-width"), c.Int("overlap"))
	if err != nil {
		return err
	}
	geojson, err := grid.MarshalGeoJSON()
	if err != nil {
		return err
	}
	if out := c.String("out"); out != "" {
		return os.WriteFile(out, geojson, 0644)
	}
	fmt.Println(string(geojson))
	return nil
}

func initConfigCommand(c *cli.Context) error {
	path := c.String("path")
	if path == "" {
		path = config.GetConfigPath()
	}
	if err := config.Default().SaveToFile(path); err != nil {
		return err
	}
	fmt.Printf("wrote default configuration to %s\n", path)
	return nil
}
