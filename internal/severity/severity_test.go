package severity_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficroute/trafficroute/internal/severity"
)

func TestClassify_KnownLevels(t *testing.T) {
	tests := []struct {
		level      int
		color      severity.Color
		label      severity.Label
		multiplier float64
	}{
		{level: 0, color: severity.ColorGreen, label: severity.LabelLight, multiplier: 1.0},
		{level: 1, color: severity.ColorYellow, label: severity.LabelModerate, multiplier: 1.3},
		{level: 2, color: severity.ColorRed, label: severity.LabelHeavy, multiplier: 1.7},
	}

	for _, tt := range tests {
		info := severity.Classify(tt.level)
		assert.Equal(t, tt.color, info.Color, "level %d", tt.level)
		assert.Equal(t, tt.label, info.Label, "level %d", tt.level)
		assert.Equal(t, tt.multiplier, info.Multiplier, "level %d", tt.level)
		assert.True(t, info.Known())
	}
}

func TestClassify_UnknownLevelsFallBack(t *testing.T) {
	for _, level := range []int{-1, 3, 7, 42, math.MaxInt, math.MinInt} {
		info := severity.Classify(level)
		assert.Equal(t, severity.ColorGray, info.Color, "level %d", level)
		assert.Equal(t, 1.0, info.Multiplier, "level %d", level)
		assert.Equal(t, severity.LabelUnknown, info.Label, "level %d", level)
		assert.False(t, info.Known())
	}
}

func TestDefaultTable_Levels(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, severity.DefaultTable().Levels())
}

func TestParseTable(t *testing.T) {
	data := []byte(`
[[level]]
code = 0
color = "green"
label = "Light"
multiplier = 1.0

[[level]]
code = 1
color = "red"
label = "Heavy"
multiplier = 2.5

[fallback]
color = "yellow"
multiplier = 1.1
`)

	table, err := severity.ParseTable(data)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, table.Levels())
	assert.Equal(t, severity.Info{Color: severity.ColorRed, Label: severity.LabelHeavy, Multiplier: 2.5}, table.Classify(1))

	fallback := table.Classify(2)
	assert.Equal(t, severity.ColorYellow, fallback.Color)
	assert.Equal(t, 1.1, fallback.Multiplier)
	assert.False(t, fallback.Known())
	assert.Equal(t, fallback, table.Unknown())
}

func TestParseTable_DefaultFallback(t *testing.T) {
	table, err := severity.ParseTable([]byte(`
[[level]]
code = 5
color = "green"
label = "Light"
multiplier = 1.0
`))
	require.NoError(t, err)
	assert.Equal(t, severity.Fallback, table.Classify(0))
}

func TestParseTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not toml", data: `level = [`},
		{name: "no levels", data: `[fallback]` + "\n" + `color = "gray"` + "\n" + `multiplier = 1.0`},
		{
			name: "unknown color",
			data: "[[level]]\ncode = 0\ncolor = \"purple\"\nlabel = \"Light\"\nmultiplier = 1.0\n",
		},
		{
			name: "unknown label",
			data: "[[level]]\ncode = 0\ncolor = \"green\"\nlabel = \"Jammed\"\nmultiplier = 1.0\n",
		},
		{
			name: "zero multiplier",
			data: "[[level]]\ncode = 0\ncolor = \"green\"\nlabel = \"Light\"\nmultiplier = 0.0\n",
		},
		{
			name: "duplicate level",
			data: "[[level]]\ncode = 0\ncolor = \"green\"\nlabel = \"Light\"\nmultiplier = 1.0\n" +
				"[[level]]\ncode = 0\ncolor = \"red\"\nlabel = \"Heavy\"\nmultiplier = 1.7\n",
		},
		{
			name: "bad fallback",
			data: "[[level]]\ncode = 0\ncolor = \"green\"\nlabel = \"Light\"\nmultiplier = 1.0\n" +
				"[fallback]\ncolor = \"gray\"\nmultiplier = -1.0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := severity.ParseTable([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, severity.ErrInvalidTable)
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "severity.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"[[level]]\ncode = 0\ncolor = \"green\"\nlabel = \"Light\"\nmultiplier = 1.0\n",
	), 0o600))

	table, err := severity.LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, severity.LabelLight, table.Classify(0).Label)

	_, err = severity.LoadTable(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
