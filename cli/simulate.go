package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/culling/config"
	"go.viam.com/culling/culling"
	"go.viam.com/culling/frustum"
	"go.viam.com/culling/logging"
	"go.viam.com/culling/spatialmath"
	"go.viam.com/culling/visibility"
)

const (
	simFieldOfView = 60.0
	simAspect      = 16.0 / 9.0
	simNear        = 0.1
	simMinSize     = 0.5
	simMaxSize     = 3.0

	histogramBins  = 10
	histogramWidth = 40
)

// countingSink remembers the last visibility applied to each object.
type countingSink struct {
	mu      sync.Mutex
	visible map[string]bool
	applied int
}

func newCountingSink() *countingSink {
	return &countingSink{visible: map[string]bool{}}
}

func (s *countingSink) Apply(_ context.Context, res culling.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[res.ID] = res.Visible
	s.applied++
	return nil
}

// counts returns the number of updates applied and the number of objects currently shown.
func (s *countingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shown := 0
	for _, v := range s.visible {
		if v {
			shown++
		}
	}
	return s.applied, shown
}

// simulation is a static scene of boxes and a camera that circles inside it.
type simulation struct {
	engine     *culling.Engine
	sink       *countingSink
	projection mgl64.Mat4
	radius     float64
}

type simulationOptions struct {
	objects        int
	radius         float64
	opaqueFraction float64
	seed           int64
}

func newSimulation(cfg *config.Config, opts simulationOptions, logger logging.Logger) (*simulation, error) {
	if opts.objects < 0 {
		return nil, errors.Errorf("object count cannot be negative, got %d", opts.objects)
	}
	if opts.radius <= 0 {
		return nil, errors.Errorf("scene radius must be positive, got %v", opts.radius)
	}
	projection, err := frustum.Perspective(simFieldOfView, simAspect, simNear, 4*opts.radius)
	if err != nil {
		return nil, err
	}

	sink := newCountingSink()
	engine, err := culling.NewEngine(cfg, sink, logger, culling.WithManualTicks())
	if err != nil {
		return nil, err
	}
	sim := &simulation{engine: engine, sink: sink, projection: projection, radius: opts.radius}

	rng := rand.New(rand.NewSource(opts.seed)) //nolint:gosec
	coord := func() float64 { return (rng.Float64()*2 - 1) * opts.radius }
	for i := 0; i < opts.objects; i++ {
		position := r3.Vector{X: coord(), Y: coord(), Z: coord()}
		size := simMinSize + rng.Float64()*(simMaxSize-simMinSize)
		bounds, err := spatialmath.NewAABBFromCenter(r3.Vector{}, r3.Vector{X: size, Y: size, Z: size})
		if err != nil {
			goutils.UncheckedError(sim.close(context.Background()))
			return nil, err
		}
		opaque := rng.Float64() < opts.opaqueFraction
		provider := culling.PositionFunc(func() (r3.Vector, bool) { return position, true })
		if h := engine.RegisterObject(uuid.NewString(), bounds, provider, culling.WithOpaque(opaque)); !h.Valid() {
			goutils.UncheckedError(sim.close(context.Background()))
			return nil, errors.Errorf("failed to register scene object %d", i)
		}
	}
	return sim, nil
}

// cameraAt returns the view matrix for the given point of the orbit. The camera stays inside
// the scene and looks along its direction of travel.
func (s *simulation) cameraAt(frame, total int) mgl64.Mat4 {
	angle := 2 * math.Pi * float64(frame) / float64(total)
	orbit := s.radius / 2
	eye := r3.Vector{X: orbit * math.Cos(angle), Z: orbit * math.Sin(angle)}
	heading := r3.Vector{X: -math.Sin(angle), Z: math.Cos(angle)}
	return frustum.LookAt(eye, eye.Add(heading), r3.Vector{Y: 1})
}

func (s *simulation) step(ctx context.Context, frame, total int) (culling.Statistics, error) {
	s.engine.UpdateCamera(s.cameraAt(frame, total), s.projection)
	return s.engine.ForceTick(ctx)
}

func (s *simulation) close(ctx context.Context) error {
	return s.engine.Close(ctx)
}

// RunAction is the corresponding action for 'run'.
func RunAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if mode := c.String(runFlagMode); mode != "" {
		if _, err := visibility.ParseMode(mode); err != nil {
			return err
		}
		cfg.Mode = mode
	}
	logger, closeLog, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(closeLog)
	ticks := c.Int(runFlagTicks)
	if ticks <= 0 {
		return errors.Errorf("--%s must be positive, got %d", runFlagTicks, ticks)
	}
	reportEvery := c.Int(runFlagReportEvery)
	if reportEvery <= 0 {
		reportEvery = 1
	}

	ctx := c.Context
	if c.Bool(generalFlagDebug) {
		ctx = logging.EnableDebugMode(ctx, "cullsim")
	}
	sim, err := newSimulation(cfg, simulationOptions{
		objects:        c.Int(runFlagObjects),
		radius:         c.Float64(runFlagRadius),
		opaqueFraction: c.Float64(runFlagOpaque),
		seed:           c.Int64(runFlagSeed),
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		goutils.UncheckedError(sim.close(ctx))
	}()

	if c.Bool(runFlagWatch) {
		path := c.String(generalFlagConfig)
		if path == "" {
			return errors.Errorf("--%s requires --%s", runFlagWatch, generalFlagConfig)
		}
		watcher, err := config.NewWatcher(path, config.DefaultWatchDebounce, func(newCfg *config.Config) {
			if err := sim.engine.ApplyConfig(newCfg); err != nil {
				logger.Warnw("failed to apply config change", "error", err)
				return
			}
			logger.Infow("applied config change", "mode", sim.engine.CullingMode())
		}, logger)
		if err != nil {
			return err
		}
		defer goutils.UncheckedErrorFunc(watcher.Close)
	}

	durations := make([]float64, 0, ticks)
	passes := table.NewWriter()
	passes.AppendHeader(table.Row{"Frame", "Mode", "Candidates", "Visible", "Culled", "Pass (ms)"})
	for i := 0; i < ticks; i++ {
		stats, err := sim.step(ctx, i, ticks)
		if err != nil {
			return err
		}
		durations = append(durations, stats.PassDurationMs())
		if (i+1)%reportEvery == 0 || i == ticks-1 {
			passes.AppendRow(table.Row{
				stats.Frame,
				stats.Mode,
				stats.Candidates,
				stats.Visible,
				stats.Culled,
				fmt.Sprintf("%.3f", stats.PassDurationMs()),
			})
		}
	}
	printf(c.App.Writer, "%s", passes.Render())
	printf(c.App.Writer, "%s", summaryTable(sim.engine.Statistics(), sim.sink))
	return printHistogram(c.App.Writer, durations)
}

// printHistogram prints the distribution of pass durations in milliseconds. Nothing is printed
// when every pass took the same time.
func printHistogram(w io.Writer, durations []float64) error {
	if len(durations) < 2 || lo.Min(durations) == lo.Max(durations) {
		return nil
	}
	printf(w, "pass duration (ms)")
	return histogram.Fprint(w, histogram.Hist(histogramBins, durations), histogram.Linear(histogramWidth))
}

func summaryTable(stats culling.Statistics, sink *countingSink) string {
	applied, shown := sink.counts()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Statistic", "Value"})
	t.AppendRows([]table.Row{
		{"frames", stats.Frame},
		{"skipped frames", stats.Skipped},
		{"tracked objects", stats.TrackedCount},
		{"shown objects", shown},
		{"visibility updates", applied},
		{"occlusion tests", stats.OcclusionTests},
		{"average pass", stats.AveragePassDuration},
		{"p95 pass", stats.P95PassDuration},
	})
	return t.Render()
}
