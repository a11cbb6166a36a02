package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

// assertLogMatches will fuzzy match log lines. It ignores the exact time and line number but
// expects a match on the level, filename, message and structured fields.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))

	// Log level.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])
	if len(actualParts) == 4 {
		return
	}

	expectedMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(expectedParts[4]), &expectedMap), test.ShouldBeNil)
	actualMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(actualParts[4]), &actualMap), test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := NewBlankLogger("")
	logger.AddAppender(NewWriterAppender(zapcore.AddSync(notStdout)))

	logger.Infow("impl Info log")
	assertLogMatches(t, notStdout, "2024-05-01T09:12:09.459Z\tINFO\tlogging/impl_test.go:60\timpl Info log")

	logger.Debugw("impl Debug log", "frame", 7)
	assertLogMatches(t, notStdout,
		`2024-05-01T09:12:09.459Z	DEBUG	logging/impl_test.go:63	impl Debug log	{"frame":7}`)

	logger.Warnw("impl logw", "key", "value", "BasicStruct", BasicStruct{1, "alice"})
	assertLogMatches(t, notStdout,
		`2024-05-01T09:12:09.459Z	WARN	logging/impl_test.go:66	impl logw	{"BasicStruct":{"X":1},"key":"value"}`)

	// An unpaired key is reported rather than dropped.
	logger.Errorw("unpaired", "lonely")
	assertLogMatches(t, notStdout,
		`2024-05-01T09:12:09.459Z	ERROR	logging/impl_test.go:71	unpaired	{"lonely":"unpaired log key"}`)
}

func TestLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)

	logger.Debugw("debug")
	logger.Infow("info")
	test.That(t, logs.Len(), test.ShouldEqual, 2)

	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
	logger.Debugw("dropped")
	logger.Infow("dropped")
	logger.Warnw("warn")
	logger.Errorw("error")
	test.That(t, logs.Len(), test.ShouldEqual, 4)
	test.That(t, logs.FilterMessage("dropped").Len(), test.ShouldEqual, 0)
}

func TestDebugMode(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(INFO)

	ctx := context.Background()
	logger.CDebugw(ctx, "dropped")
	test.That(t, logs.Len(), test.ShouldEqual, 0)
	test.That(t, IsDebugMode(ctx), test.ShouldBeFalse)

	ctx = EnableDebugMode(ctx, "pass")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	test.That(t, GetName(ctx), test.ShouldEqual, "pass")
	logger.CDebugw(ctx, "kept", "frame", 1)
	test.That(t, logs.FilterMessage("kept").Len(), test.ShouldEqual, 1)

	test.That(t, GetName(EnableDebugMode(context.Background(), "")), test.ShouldHaveLength, 6)
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("culling").Sublogger("scheduler")

	sub.Infow("tick", "frame", 3)
	entries := logs.TakeAll()
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "culling.scheduler")
	test.That(t, entries[0].ContextMap()["frame"], test.ShouldEqual, int64(3))

	t.Run("appenders are shared per root", func(t *testing.T) {
		root := NewBlankLogger("root")
		sub := root.Sublogger("child")
		other := NewBlankLogger("other")

		core, late := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
		sub.AddAppender(core)
		root.Infow("from root")
		sub.Infow("from child")
		other.Infow("from another root")

		names := []string{}
		for _, entry := range late.TakeAll() {
			names = append(names, entry.LoggerName)
		}
		test.That(t, names, test.ShouldResemble, []string{"root", "root.child"})
	})
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	out, err := json.Marshal(ERROR)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"error"`)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "culling.log")
	appender := NewFileAppender(path, 1)
	logger := NewBlankLogger("file")
	logger.AddAppender(appender)

	logger.Infow("written to disk", "frame", 12)
	test.That(t, logger.Sync(), test.ShouldBeNil)
	test.That(t, appender.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "written to disk")
	test.That(t, string(contents), test.ShouldContainSubstring, `"frame"`)
}
