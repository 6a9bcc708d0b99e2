package config

import (
	_ "embed"
	"errors"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/race"
)

//go:embed tracks.yaml
var defaultTracks []byte

var ErrTracks = errors.New("unable to load track catalogue")

type track struct {
	Laps        int `yaml:"laps"        validate:"min=1,max=99"`
	Checkpoints int `yaml:"checkpoints" validate:"min=1,max=256"`
}

func (t track) race() race.Config {
	return race.Config{MaxLaps: t.Laps, CheckpointsPerLap: t.Checkpoints}
}

type trackFile struct {
	Default *track           `yaml:"default"`
	Maps    map[string]track `yaml:"maps" validate:"dive"`
}

// Tracks maps a map id to the lap and checkpoint counts raced on it.
type Tracks struct {
	fallback race.Config
	maps     map[string]race.Config
}

// LoadTracks reads the catalogue at path, or the embedded one if path is empty.
func LoadTracks(path string) (*Tracks, error) {
	if path == "" {
		return ParseTracks(defaultTracks)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrTracks, err)
	}
	return ParseTracks(data)
}

func ParseTracks(data []byte) (*Tracks, error) {
	var f trackFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Join(ErrTracks, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, errors.Join(ErrTracks, err)
	}

	t := &Tracks{
		fallback: race.DefaultConfig(),
		maps:     make(map[string]race.Config, len(f.Maps)),
	}
	if f.Default != nil {
		t.fallback = f.Default.race()
	}
	for id, tr := range f.Maps {
		t.maps[id] = tr.race()
	}
	return t, nil
}

// Lookup returns the race rules for mapID, falling back to the default track.
func (t *Tracks) Lookup(mapID string) race.Config {
	if cfg, ok := t.maps[mapID]; ok {
		return cfg
	}
	return t.fallback
}

func (t *Tracks) Maps() []string {
	ids := make([]string, 0, len(t.maps))
	for id := range t.maps {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
