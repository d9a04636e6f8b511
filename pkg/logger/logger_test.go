package logger

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level Level) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewWithConfig(Config{Level: level, Writer: &buf, NoColor: true}), &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel)
	l.Info("hidden")
	l.Debugf("hidden %d", 1)
	l.Warn("shown")
	l.Errorf("also %s", "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN  shown")
	assert.Contains(t, out, "ERROR also shown")
}

func TestFieldsAreSorted(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)
	l.WithFields(map[string]interface{}{"zeta": 1, "alpha": "x", "mid": true}).Info("msg")
	assert.Contains(t, buf.String(), "alpha=x mid=true zeta=1 msg")
}

func TestChildrenDoNotLeakFields(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)
	child := l.WithField("drone", "d1")
	child.Info("one")
	l.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "drone=d1")
	assert.NotContains(t, lines[1], "drone=d1")
}

func TestNestedPrefix(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)
	l.WithPrefix("fleet").WithPrefix("scheduler").Info("tick")
	assert.Contains(t, buf.String(), "[fleet.scheduler] tick")
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Level: InfoLevel, Writer: &buf, NoColor: true}).(*logger)
	code := -1
	l.out.exit = func(c int) { code = c }

	l.Fatal("boom")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "FATAL boom")
}

func TestConcurrentChildrenDoNotInterleave(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.WithField("n", i).Info("line")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, "line"))
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, "error", ErrorLevel.String())
}

func TestTableFprint(t *testing.T) {
	SetNoColor(true)
	tbl := NewTable("DRONE", "SCORE")
	tbl.AddRow("drone-1", "64.0")
	tbl.AddRow("d2", "7")

	var buf bytes.Buffer
	tbl.Fprint(&buf)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "DRONE    SCORE", lines[0])
	assert.Equal(t, "-------  -----", lines[1])
	assert.Equal(t, "drone-1  64.0", lines[2])
}

func TestDiscardWritesNothing(t *testing.T) {
	l := Discard()
	assert.NotPanics(t, func() {
		l.Error("nothing")
		l.Fatal("no exit")
	})
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerShowsLatestMessage(t *testing.T) {
	var buf lockedBuffer
	s := NewSpinnerWithFrames("Landing 3 drones...", SpinnerLine)
	s.writer = &buf
	s.interval = time.Millisecond

	s.Start()
	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "Landing 3") }, time.Second, time.Millisecond)
	s.UpdateMessage("Landing 1 drones...")
	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "Landing 1") }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()

	out := buf.String()
	assert.Contains(t, out, "Landing 3 drones...")
	assert.Contains(t, out, "Landing 1 drones...")
	assert.True(t, strings.HasSuffix(out, "\r"))
}

func TestWithSpinnerReturnsResult(t *testing.T) {
	SetNoColor(true)
	t.Cleanup(func() { SetNoColor(false) })

	boom := errors.New("disk full")
	assert.ErrorIs(t, WithSpinner("Writing report", func() error { return boom }), boom)
	assert.NoError(t, WithSpinner("Writing report", func() error { return nil }))
}
