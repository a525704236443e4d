package severity

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidTable is returned when a severity table fails validation.
var ErrInvalidTable = errors.New("invalid severity table")

// Table is a lookup table from traffic level to severity.
// A Table is immutable once built and safe for concurrent use.
type Table struct {
	levels   map[int]Info
	fallback Info
}

// DefaultTable returns the built-in three level table.
func DefaultTable() *Table {
	return &Table{
		levels: map[int]Info{
			LevelLight:    {Color: ColorGreen, Label: LabelLight, Multiplier: 1.0},
			LevelModerate: {Color: ColorYellow, Label: LabelModerate, Multiplier: 1.3},
			LevelHeavy:    {Color: ColorRed, Label: LabelHeavy, Multiplier: 1.7},
		},
		fallback: Fallback,
	}
}

// Classify returns the severity for level, or the table fallback when the
// level is not in the table.
func (t *Table) Classify(level int) Info {
	if info, ok := t.levels[level]; ok {
		return info
	}
	return t.fallback
}

// Unknown returns the severity used for unrecognized levels.
func (t *Table) Unknown() Info {
	return t.fallback
}

// Levels returns the configured level codes in ascending order.
func (t *Table) Levels() []int {
	codes := make([]int, 0, len(t.levels))
	for code := range t.levels {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// tableFile is the on-disk TOML layout:
//
//	[[level]]
//	code = 0
//	color = "green"
//	label = "Light"
//	multiplier = 1.0
//
//	[fallback]
//	color = "gray"
//	multiplier = 1.0
type tableFile struct {
	Level    []levelEntry `toml:"level"`
	Fallback *Info        `toml:"fallback"`
}

type levelEntry struct {
	Code       int     `toml:"code"`
	Color      Color   `toml:"color"`
	Label      Label   `toml:"label"`
	Multiplier float64 `toml:"multiplier"`
}

func (e levelEntry) info() Info {
	return Info{Color: e.Color, Label: e.Label, Multiplier: e.Multiplier}
}

// LoadTable reads a severity table from a TOML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading severity table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a TOML severity table.
// A missing [fallback] section uses Fallback.
func ParseTable(data []byte) (*Table, error) {
	var file tableFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	if len(file.Level) == 0 {
		return nil, fmt.Errorf("%w: no levels defined", ErrInvalidTable)
	}

	t := &Table{
		levels:   make(map[int]Info, len(file.Level)),
		fallback: Fallback,
	}

	for _, entry := range file.Level {
		if _, dup := t.levels[entry.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate level %d", ErrInvalidTable, entry.Code)
		}
		info := entry.info()
		if err := validateInfo(info); err != nil {
			return nil, fmt.Errorf("%w: level %d: %w", ErrInvalidTable, entry.Code, err)
		}
		t.levels[entry.Code] = info
	}

	if file.Fallback != nil {
		if err := validateInfo(*file.Fallback); err != nil {
			return nil, fmt.Errorf("%w: fallback: %w", ErrInvalidTable, err)
		}
		t.fallback = *file.Fallback
	}

	return t, nil
}

func validateInfo(info Info) error {
	if !info.Color.Valid() {
		return fmt.Errorf("unknown color %q", info.Color)
	}
	if !info.Label.Valid() {
		return fmt.Errorf("unknown label %q", info.Label)
	}
	if !(info.Multiplier > 0) {
		return fmt.Errorf("multiplier must be positive, got %v", info.Multiplier)
	}
	return nil
}
