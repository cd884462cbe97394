package validate

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// Rules tunes the validator.
type Rules struct {
	// Disabled lists diagnostic kinds that are never reported.
	Disabled []model.DiagnosticKind `yaml:"disabled" mapstructure:"disabled"`

	// WarpedStatuses are the map statuses that count as georeferenced for
	// unwarped_but_masked.
	WarpedStatuses []string `yaml:"warped_statuses" mapstructure:"warped_statuses"`

	// UnmaskedWarnStatuses are the map statuses that trigger
	// warped_but_unmasked when the map has no mask.
	UnmaskedWarnStatuses []string `yaml:"unmasked_warn_statuses" mapstructure:"unmasked_warn_statuses"`

	// MinCoordinates is the smallest acceptable outer ring, closing point
	// included.
	MinCoordinates int `yaml:"min_coordinates" mapstructure:"min_coordinates"`
}

// DefaultRules returns the stock rule set.
func DefaultRules() Rules {
	return Rules{
		WarpedStatuses:       []string{"warped", "published"},
		UnmaskedWarnStatuses: []string{"warped"},
		MinCoordinates:       4,
	}
}

// LoadRules reads a YAML rules file. Keys missing from the file keep their
// defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "validate: read rules %s", path)
	}

	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, eris.Wrapf(err, "validate: parse rules %s", path)
	}
	if err := rules.Check(); err != nil {
		return Rules{}, eris.Wrapf(err, "validate: rules %s", path)
	}
	return rules, nil
}

// Check rejects unknown diagnostic kinds and a negative coordinate minimum.
func (r Rules) Check() error {
	for _, k := range r.Disabled {
		if !slices.Contains(model.DiagnosticKinds, k) {
			return eris.Errorf("unknown diagnostic kind %q", k)
		}
	}
	if r.MinCoordinates < 0 {
		return eris.Errorf("min_coordinates must be non-negative, got %d", r.MinCoordinates)
	}
	return nil
}

func (r Rules) enabled(k model.DiagnosticKind) bool {
	return !slices.Contains(r.Disabled, k)
}
