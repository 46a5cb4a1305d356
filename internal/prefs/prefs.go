// Package prefs persists the flat preference record shared with the
// presentation layer. Documents are YAML; the older JSON documents are valid
// YAML flow mappings and load unchanged.
package prefs

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrPersistenceRead wraps every load failure. Load still returns usable
// defaults alongside it.
var ErrPersistenceRead = errors.New("prefs: cannot read preferences")

// ColorTemp is the night-light tint.
type ColorTemp string

const (
	Warm ColorTemp = "warm"
	Soft ColorTemp = "soft"
	Blue ColorTemp = "blue"
	Rose ColorTemp = "rose"
)

func (c ColorTemp) Valid() bool {
	switch c {
	case Warm, Soft, Blue, Rose:
		return true
	}
	return false
}

// Level is a 0..100 slider value. Slider values were once saved as strings,
// so "75" decodes like 75.
type Level int

func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: level must be a number", value.Line)
	}
	f, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("line %d: level %q: %w", value.Line, value.Value, err)
	}
	*l = Level(math.Round(f))
	return nil
}

type Prefs struct {
	MasterVolume Level     `yaml:"masterVolume"`
	Brightness   Level     `yaml:"brightness"`
	ColorTemp    ColorTemp `yaml:"colorTemp"`
	TimerMinutes int       `yaml:"timerMinutes"`
}

func Defaults() Prefs {
	return Prefs{
		MasterVolume: 90,
		Brightness:   30,
		ColorTemp:    Warm,
		TimerMinutes: 0,
	}
}

func (p Prefs) Validate() error {
	var errs []error
	if p.MasterVolume < 0 || p.MasterVolume > 100 {
		errs = append(errs, fmt.Errorf("masterVolume %d out of range", p.MasterVolume))
	}
	if p.Brightness < 0 || p.Brightness > 100 {
		errs = append(errs, fmt.Errorf("brightness %d out of range", p.Brightness))
	}
	if !p.ColorTemp.Valid() {
		errs = append(errs, fmt.Errorf("unknown colorTemp %q", p.ColorTemp))
	}
	if p.TimerMinutes < 0 {
		errs = append(errs, fmt.Errorf("negative timerMinutes %d", p.TimerMinutes))
	}
	return errors.Join(errs...)
}

// Decode parses a document over the defaults; absent fields keep their
// default. A document that does not parse or validate yields the defaults
// and an error wrapping ErrPersistenceRead.
func Decode(data []byte) (Prefs, error) {
	p := Defaults()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("%w: %w", ErrPersistenceRead, err)
	}
	if err := p.Validate(); err != nil {
		return Defaults(), fmt.Errorf("%w: %w", ErrPersistenceRead, err)
	}
	return p, nil
}

// Load reads path. It never fails hard: on any error the defaults come back
// with an error wrapping ErrPersistenceRead.
func Load(path string) (Prefs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), fmt.Errorf("%w: %w", ErrPersistenceRead, err)
	}
	return Decode(data)
}

// Save writes p to path through a temporary file so a crash never leaves a
// truncated document.
func Save(path string, p Prefs) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// DefaultPath is prefs.yaml under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hushbox", "prefs.yaml"), nil
}
