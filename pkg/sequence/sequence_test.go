package sequence

import (
	"testing"
	"time"

	"github.com/itohio/thermocycler/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuffixes(t *testing.T) {
	records := []Record{
		{Value: 90, Duration: Minutes(10), Recording: true},
		{Value: 40, Duration: Minutes(2.5)},
		{Value: 4},
	}

	assert.Equal(t, "_setpoint90.0,10.0", StageSuffix(records[0]))
	assert.Equal(t, "_setpoint4.0,inf", StageSuffix(records[2]))
	assert.Equal(t, "_setpoints90.0,10.0-40.0,2.5-4.0,inf", SequenceSuffix(records))
	assert.Equal(t, "_setpoints", SequenceSuffix(nil))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "", Prefix(""))
	assert.Equal(t, "lysis_", Prefix("lysis"))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Sequence
	seq := FromConfig(cfg)

	assert.Equal(t, cfg.Name, seq.Name)
	require.Len(t, seq.Records, 2)
	assert.Equal(t, 90.0, seq.Records[0].Value)
	assert.Equal(t, 10*time.Minute, *seq.Records[0].Duration)
	assert.True(t, seq.Records[0].Recording)
	require.NotNil(t, seq.Preflight)
	require.NotNil(t, seq.Postflight)
	assert.False(t, seq.Preflight.Recording)

	// Durations are copied, not shared.
	*seq.Records[0].Duration = time.Second
	assert.Equal(t, 10*time.Minute, *cfg.Records[0].Duration)
}

func TestFromConfig_IndefiniteHold(t *testing.T) {
	seq := FromConfig(config.SequenceConfig{
		Records: []config.RecordConfig{{Value: 4}},
	})
	require.Len(t, seq.Records, 1)
	assert.Nil(t, seq.Records[0].Duration)
	assert.Nil(t, seq.Preflight)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "approaching", Approaching.String())
	assert.Equal(t, "holding", Holding.String())
	assert.Equal(t, "unknown", State(7).String())
}
