package game

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MIN_LEVEL_WIDTH = 2

	LayoutClassic = "classic"
	LayoutEasy    = "easy"
	LayoutHard    = "hard"
	LayoutRandom  = "random"

	// LayoutShuffle is not a layout. A bet naming it plays a registered
	// layout drawn at random.
	LayoutShuffle = "shuffle"
)

// LayoutConfig is the shape of a tower: slot count per level and the
// multiplier earned for clearing that level.
type LayoutConfig struct {
	Name        string    `json:"name" yaml:"name"`
	Levels      []int     `json:"levels" yaml:"levels"`
	Multipliers []float64 `json:"multipliers" yaml:"multipliers"`
}

var defaultMultipliers = []float64{
	1.10, 1.32, 1.59, 1.91, 2.29, 2.74, 3.28, 3.93, 4.71, 5.65,
	6.78, 8.14, 9.77, 11.72, 14.06, 16.87, 20.24, 24.29, 29.15,
	34.98, 41.97, 50.36, 60.43, 72.52, 380.00,
}

var presets = map[string][]int{
	LayoutClassic: {6, 5, 4, 3, 4, 5, 6, 5, 4, 3, 4, 5, 6, 5, 4, 3, 4, 5, 6, 5, 4, 3, 4, 5, 6},
	LayoutEasy:    {4, 3, 2, 3, 4, 3, 2, 3, 4, 3, 2, 3, 4, 3, 2, 3, 4, 3, 2, 3, 4, 3, 2, 3, 4},
	LayoutHard:    {8, 7, 6, 5, 6, 7, 8, 7, 6, 5, 6, 7, 8, 7, 6, 5, 6, 7, 8, 7, 6, 5, 6, 7, 8},
	LayoutRandom:  {5, 4, 6, 3, 7, 4, 5, 6, 3, 4, 5, 6, 4, 3, 5, 6, 4, 5, 3, 6, 4, 5, 6, 3, 5},
}

// Validate checks the structural invariants every round relies on.
func (l LayoutConfig) Validate() error {
	if len(l.Levels) == 0 {
		return fmt.Errorf("%w: layout has no levels", ErrInvalidConfig)
	}
	if len(l.Levels) != len(l.Multipliers) {
		return fmt.Errorf("%w: %d levels but %d multipliers", ErrInvalidConfig, len(l.Levels), len(l.Multipliers))
	}
	for i, width := range l.Levels {
		if width < MIN_LEVEL_WIDTH {
			return fmt.Errorf("%w: level %d has width %d, need at least %d", ErrInvalidConfig, i, width, MIN_LEVEL_WIDTH)
		}
	}
	for i, m := range l.Multipliers {
		if m <= 0 {
			return fmt.Errorf("%w: multiplier at level %d must be positive", ErrInvalidConfig, i)
		}
		if i > 0 && m <= l.Multipliers[i-1] {
			return fmt.Errorf("%w: multipliers must be strictly increasing (level %d: %.2f <= %.2f)",
				ErrInvalidConfig, i, m, l.Multipliers[i-1])
		}
	}
	return nil
}

func (l LayoutConfig) LevelCount() int {
	return len(l.Levels)
}

// MultiplierAfter returns the multiplier banked once `cleared` levels are
// behind the player. Nothing cleared means 1.0.
func (l LayoutConfig) MultiplierAfter(cleared int) float64 {
	if cleared <= 0 {
		return 1.0
	}
	if cleared > len(l.Multipliers) {
		cleared = len(l.Multipliers)
	}
	return l.Multipliers[cleared-1]
}

func (l LayoutConfig) clone() LayoutConfig {
	out := LayoutConfig{
		Name:        l.Name,
		Levels:      make([]int, len(l.Levels)),
		Multipliers: make([]float64, len(l.Multipliers)),
	}
	copy(out.Levels, l.Levels)
	copy(out.Multipliers, l.Multipliers)
	return out
}

// Layouts is a registry of named layouts.
type Layouts struct {
	byName map[string]LayoutConfig
}

// DefaultLayouts returns the built-in presets.
func DefaultLayouts() *Layouts {
	ls := &Layouts{byName: make(map[string]LayoutConfig, len(presets))}
	for name, levels := range presets {
		multipliers := make([]float64, len(defaultMultipliers))
		copy(multipliers, defaultMultipliers)
		levelsCopy := make([]int, len(levels))
		copy(levelsCopy, levels)
		ls.byName[name] = LayoutConfig{Name: name, Levels: levelsCopy, Multipliers: multipliers}
	}
	return ls
}

// Get looks up a layout by case-insensitive name.
func (ls *Layouts) Get(name string) (LayoutConfig, bool) {
	l, ok := ls.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return LayoutConfig{}, false
	}
	return l.clone(), true
}

// Names returns all registered layout names, sorted.
func (ls *Layouts) Names() []string {
	names := make([]string, 0, len(ls.byName))
	for name := range ls.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add registers a layout after validating it. Existing names are replaced.
func (ls *Layouts) Add(l LayoutConfig) error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: layout name is required", ErrInvalidConfig)
	}
	if strings.EqualFold(strings.TrimSpace(l.Name), LayoutShuffle) {
		return fmt.Errorf("%w: layout name %q is reserved", ErrInvalidConfig, LayoutShuffle)
	}
	if err := l.Validate(); err != nil {
		return fmt.Errorf("layout %q: %w", l.Name, err)
	}
	l = l.clone()
	l.Name = strings.ToLower(strings.TrimSpace(l.Name))
	ls.byName[l.Name] = l
	return nil
}

type layoutsFile struct {
	Layouts []LayoutConfig `yaml:"layouts"`
}

// LoadLayouts reads extra layouts from a YAML file into ls. A layout that
// omits its multipliers inherits the default table when the level count
// matches it.
func (ls *Layouts) LoadLayouts(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read layouts file: %w", err)
	}

	var f layoutsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse layouts file: %w", err)
	}

	for _, l := range f.Layouts {
		if len(l.Multipliers) == 0 && len(l.Levels) == len(defaultMultipliers) {
			l.Multipliers = append([]float64(nil), defaultMultipliers...)
		}
		if err := ls.Add(l); err != nil {
			return err
		}
	}
	return nil
}
