package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itohio/thermocycler/pkg/clock"
	"github.com/itohio/thermocycler/pkg/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFake(t0)
	sink := NewFileSink(dir, "lysis_", "")
	r := New("file", sink, 500*time.Millisecond, WithClock(clk.Now), WithEfforts("Heater Effort"))

	r.SetSuffix("_setpoint90.0,10.0")
	for i := 0; i <= 10; i++ {
		require.NoError(t, r.Update(valid(25+float64(i))))
		clk.Advance(100 * time.Millisecond)
	}
	require.NoError(t, r.Close())

	path := filepath.Join(dir, "lysis_2024-05-01T12-00-00.000_setpoint90.0,10.0.csv")
	assert.Equal(t, path, sink.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `Time (s),Temperature (deg C),Setpoint (deg C),Error (deg C),Heater Effort,Setpoint Reached`, lines[0])
	assert.Equal(t, `0.50,30.0,90.0,60.0,1.00,false`, lines[1])
	assert.Equal(t, `1.00,35.0,90.0,55.0,1.00,false`, lines[2])
}

func TestFileSink_NewFilePerReset(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFake(t0)
	sink := NewFileSink(dir, "run_", "")
	r := New("file", sink, time.Second, WithClock(clk.Now))

	require.NoError(t, r.Update(valid(25)))
	first := sink.Path()
	clk.Advance(2 * time.Second)
	require.NoError(t, r.Reset())
	require.NoError(t, r.Update(valid(25)))
	require.NoError(t, r.Close())

	assert.NotEqual(t, first, sink.Path())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileSink_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	sink := NewFileSink(filepath.Join(blocker, "logs"), "", "")
	assert.Error(t, sink.Open(t0, Columns()))
	assert.Error(t, sink.WriteRow(Row{}))
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	clk := clock.NewFake(t0)
	r := New("console", NewConsoleSink(&buf), 15*time.Second, WithClock(clk.Now))

	require.NoError(t, r.Update(valid(25)))
	clk.Advance(15 * time.Second)
	require.NoError(t, r.Update(valid(26)))
	require.NoError(t, r.Reset())
	require.NoError(t, r.Update(valid(27)))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, ColumnTime), "one header per log")
	assert.Contains(t, out, "15.00,26.0,90.0,64.0,1.00,false\n")
}

func TestReadLog(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFake(t0)
	sink := NewFileSink(dir, "", "")
	r := New("file", sink, time.Second, WithClock(clk.Now), WithEfforts("Heater Effort"))

	require.NoError(t, r.Update(valid(25)))
	clk.Advance(time.Second)
	require.NoError(t, r.Update(valid(26)))
	clk.Advance(time.Second)
	require.NoError(t, r.Update(Snapshot{Temperature: 27, Valid: true, SetpointReached: true, Efforts: []control.Effort{0}}))
	require.NoError(t, r.Close())

	l, err := ReadLog(sink.Path())
	require.NoError(t, err)
	assert.Equal(t, Columns("Heater Effort"), l.Columns)
	assert.Equal(t, []float64{26, 27}, l.Column(ColumnTemp))
	sp := l.Column(ColumnSetpoint)
	assert.Equal(t, 90.0, sp[0])
	assert.True(t, math.IsNaN(sp[1]))
	assert.Equal(t, []float64{0, 1}, l.Column(ColumnReached))
	assert.Nil(t, l.Column("missing"))
}

func TestParseLog_Errors(t *testing.T) {
	_, err := ParseLog(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParseLog(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)

	_, err = ParseLog(strings.NewReader("a,b\n1,x\n"))
	assert.Error(t, err)
}
