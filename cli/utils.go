package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"go.viam.com/culling/config"
	"go.viam.com/culling/logging"
)

// printf prints a message with a newline.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// loadConfig reads the config named by --config, or returns the defaults when there is none.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(generalFlagConfig)
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load config %q", path)
	}
	return cfg, nil
}

const logFileMaxSizeMB = 64

// newLogger returns a logger writing to the app's error writer and, with --log-file, to a
// rotated file. --debug overrides the configured level, for the engine as well. The returned
// function closes the log file.
func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, func() error, error) {
	if c.Bool(generalFlagDebug) {
		cfg.LogLevel = logging.DEBUG.String()
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewBlankLogger("cullsim")
	logger.AddAppender(logging.NewWriterAppender(zapcore.AddSync(c.App.ErrWriter)))
	logger.SetLevel(level)

	closeFn := func() error { return nil }
	if path := c.String(generalFlagLogFile); path != "" {
		file := logging.NewFileAppender(path, logFileMaxSizeMB)
		logger.AddAppender(file)
		closeFn = file.Close
	}
	return logger, closeFn, nil
}
