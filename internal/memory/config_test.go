package memory

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// keepLimit restores the process memory limit after the test.
func keepLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
}

func TestConfigureFromMemoryLimit(t *testing.T) {
	keepLimit(t)

	tests := []struct {
		name      string
		env       map[string]string
		wantLimit int64
		wantRatio float64
	}{
		{
			name:      "default ratio",
			env:       map[string]string{"MEMORY_LIMIT": "1000000000"},
			wantLimit: 850000000,
			wantRatio: DefaultMemoryRatio,
		},
		{
			name:      "custom ratio",
			env:       map[string]string{"MEMORY_LIMIT": "1000000000", "MEMORY_RATIO": "0.5"},
			wantLimit: 500000000,
			wantRatio: 0.5,
		},
		{
			name:      "ratio out of range",
			env:       map[string]string{"MEMORY_LIMIT": "1000000000", "MEMORY_RATIO": "1.5"},
			wantLimit: 850000000,
			wantRatio: DefaultMemoryRatio,
		},
		{
			name:      "unparsable ratio",
			env:       map[string]string{"MEMORY_LIMIT": "1000000000", "MEMORY_RATIO": "most"},
			wantLimit: 850000000,
			wantRatio: DefaultMemoryRatio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Configure(envMap(tt.env), zaptest.NewLogger(t))

			require.True(t, got.Configured, "%+v", got)
			require.Equal(t, SourceMemoryLimit, got.Source)
			assert.Equal(t, tt.wantLimit, got.GoMemLimit)
			assert.Equal(t, tt.wantRatio, got.Ratio)
			assert.Equal(t, tt.wantLimit, debug.SetMemoryLimit(-1), "runtime limit")
		})
	}
}

func TestConfigureWithoutLimit(t *testing.T) {
	keepLimit(t)

	for name, env := range map[string]map[string]string{
		"unset":    {},
		"invalid":  {"MEMORY_LIMIT": "lots"},
		"negative": {"MEMORY_LIMIT": "-5"},
	} {
		t.Run(name, func(t *testing.T) {
			got := Configure(envMap(env), nil)
			assert.False(t, got.Configured, "%+v", got)
			assert.Equal(t, SourceNone, got.Source)
		})
	}
}

func TestConfigureRespectsGoMemLimit(t *testing.T) {
	keepLimit(t)
	debug.SetMemoryLimit(256 << 20)

	got := Configure(envMap(map[string]string{
		"GOMEMLIMIT":   "256MiB",
		"MEMORY_LIMIT": "1000000000",
	}), zaptest.NewLogger(t))

	assert.Equal(t, SourceGoMemLimit, got.Source)
	assert.Equal(t, int64(256<<20), got.GoMemLimit)
	assert.Equal(t, int64(256<<20), debug.SetMemoryLimit(-1), "MEMORY_LIMIT must not override GOMEMLIMIT")
}
