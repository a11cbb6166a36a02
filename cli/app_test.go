package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"
	"go.viam.com/test"
)

// syncBuffer is written to by engine goroutines while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp() (*cli.App, *syncBuffer, *syncBuffer) {
	out := &syncBuffer{}
	errOut := &syncBuffer{}
	return NewApp(out, errOut), out, errOut
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "culling.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestRunAction(t *testing.T) {
	app, out, _ := newTestApp()
	err := app.Run([]string{
		"cullsim", "run",
		"--objects", "200", "--ticks", "12", "--report-every", "4", "--radius", "40",
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "CANDIDATES")
	test.That(t, out.String(), test.ShouldContainSubstring, "tracked objects")
	test.That(t, out.String(), test.ShouldContainSubstring, "normal")
	// Only the forced passes run, one per tick.
	test.That(t, regexp.MustCompile(`\| frames +\| +12 +\|`).MatchString(out.String()), test.ShouldBeTrue)

	t.Run("mode override", func(t *testing.T) {
		app, out, _ := newTestApp()
		err := app.Run([]string{"cullsim", "run", "--objects", "20", "--ticks", "2", "--mode", "aggressive"})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.String(), test.ShouldContainSubstring, "aggressive")
	})

	t.Run("bad arguments", func(t *testing.T) {
		app, _, _ := newTestApp()
		test.That(t, app.Run([]string{"cullsim", "run", "--ticks", "0"}), test.ShouldNotBeNil)
		test.That(t, app.Run([]string{"cullsim", "run", "--mode", "bogus"}), test.ShouldNotBeNil)
		test.That(t, app.Run([]string{"cullsim", "run", "--radius", "-1"}), test.ShouldNotBeNil)
		test.That(t, app.Run([]string{"cullsim", "run", "--watch"}), test.ShouldNotBeNil)
	})

	t.Run("log file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "cullsim.log")
		app, _, _ := newTestApp()
		err := app.Run([]string{"cullsim", "--debug", "--log-file", logPath, "run", "--objects", "10", "--ticks", "2"})
		test.That(t, err, test.ShouldBeNil)
		contents, err := os.ReadFile(logPath)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(contents), test.ShouldContainSubstring, "culling pass complete")
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `{"octree": {"half_size": 64}, "mode": "conservative", "log_level": "warn"}`)
		app, out, _ := newTestApp()
		err := app.Run([]string{"cullsim", "-c", path, "run", "--objects", "50", "--ticks", "3", "--watch"})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.String(), test.ShouldContainSubstring, "conservative")
	})
}

func TestModesAction(t *testing.T) {
	app, out, _ := newTestApp()
	test.That(t, app.Run([]string{"cullsim", "modes"}), test.ShouldBeNil)
	for _, mode := range []string{"disabled", "conservative", "normal", "aggressive"} {
		test.That(t, out.String(), test.ShouldContainSubstring, mode)
	}
	test.That(t, out.String(), test.ShouldContainSubstring, "MAX DISTANCE")
}

func TestValidateAction(t *testing.T) {
	path := writeConfig(t, `{"octree": {"half_size": 64, "max_depth": 0}, "tick_interval": "50ms"}`)
	app, out, _ := newTestApp()
	test.That(t, app.Run([]string{"cullsim", "validate", path}), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "is valid")
	test.That(t, out.String(), test.ShouldContainSubstring, "50ms")

	bad := writeConfig(t, `{"cell_size": -1}`)
	app, _, _ = newTestApp()
	err := app.Run([]string{"cullsim", "validate", bad})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "half_size")

	app, _, _ = newTestApp()
	test.That(t, app.Run([]string{"cullsim", "validate"}), test.ShouldNotBeNil)
}

func TestSchemaAction(t *testing.T) {
	app, out, _ := newTestApp()
	test.That(t, app.Run([]string{"cullsim", "schema"}), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "half_size")
	test.That(t, out.String(), test.ShouldContainSubstring, "coherence_frames")
}

func TestPrintHistogram(t *testing.T) {
	var out bytes.Buffer
	test.That(t, printHistogram(&out, []float64{1, 1, 1}), test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, 0)

	test.That(t, printHistogram(&out, []float64{0.5, 1, 1.5, 2, 4}), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "pass duration (ms)")
}
