package cli

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/culling/config"
	"go.viam.com/culling/visibility"
)

// ModesAction is the corresponding action for 'modes'.
func ModesAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	current, err := cfg.CullingMode()
	if err != nil {
		return err
	}
	modes, err := cfg.ModeConfigs()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Mode", "Max Distance", "Occlusion", "Active"})
	for _, mode := range visibility.Modes {
		active := ""
		if mode == current {
			active = "*"
		}
		if mode == visibility.Disabled {
			t.AppendRow(table.Row{mode, "-", "-", active})
			continue
		}
		mc := modes[mode]
		t.AppendRow(table.Row{mode, mc.MaxDistance, mc.OcclusionCulling, active})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// ValidateAction is the corresponding action for 'validate'. The file is taken from the first
// argument, falling back to --config.
func ValidateAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String(generalFlagConfig)
	}
	if path == "" {
		return errors.New("no config file given")
	}
	cfg, err := config.Read(path)
	if err != nil {
		return errors.Wrapf(err, "%s is not a valid culling config", path)
	}
	interval, err := cfg.ParsedTickInterval()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"cell_size", cfg.CellSize},
		{"octree.center", fmt.Sprintf("X:%.2f, Y:%.2f, Z:%.2f", cfg.Octree.Center.X, cfg.Octree.Center.Y, cfg.Octree.Center.Z)},
		{"octree.half_size", cfg.Octree.HalfSize},
		{"octree.max_depth", cfg.Octree.Depth()},
		{"octree.max_objects_per_node", cfg.Octree.MaxObjectsPerNode},
		{"tick_interval", interval},
		{"mode", cfg.Mode},
		{"workers", cfg.Workers},
		{"occlusion.step_size", cfg.Occlusion.StepSize},
		{"occlusion.max_steps", cfg.Occlusion.MaxSteps},
		{"coherence_frames", cfg.CoherenceFrames},
		{"log_level", cfg.LogLevel},
	})
	printf(c.App.Writer, "%s is valid", path)
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}
