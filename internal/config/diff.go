package config

import (
	"reflect"
	"slices"
	"strings"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked in detail; anything
// else sets RestartRequired.
type ConfigDiff struct {
	PersonasChanged bool          // true if any persona was added, removed, or edited
	PersonaChanges  []PersonaDiff // per-age-group diffs, sorted by age group
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is set when runtime, speech, resilience, or the listen
	// address changed. Those are only read at startup.
	RestartRequired bool
}

// PersonaDiff describes what changed for a single age group between two configs.
type PersonaDiff struct {
	AgeGroup        string
	NameChanged     bool
	PromptChanged   bool
	GreetingChanged bool
	Added           bool
	Removed         bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!reflect.DeepEqual(old.Runtime, new.Runtime) ||
		!reflect.DeepEqual(old.Speech, new.Speech) ||
		old.Resilience != new.Resilience {
		d.RestartRequired = true
	}

	oldPersonas := make(map[string]*PersonaConfig, len(old.Personas))
	for i := range old.Personas {
		oldPersonas[old.Personas[i].AgeGroup] = &old.Personas[i]
	}
	newPersonas := make(map[string]*PersonaConfig, len(new.Personas))
	for i := range new.Personas {
		newPersonas[new.Personas[i].AgeGroup] = &new.Personas[i]
	}

	for group, op := range oldPersonas {
		np, exists := newPersonas[group]
		if !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{AgeGroup: group, Removed: true})
			continue
		}
		pd := PersonaDiff{
			AgeGroup:        group,
			NameChanged:     op.Name != np.Name,
			PromptChanged:   op.SystemPrompt != np.SystemPrompt,
			GreetingChanged: op.Greeting != np.Greeting,
		}
		if pd.NameChanged || pd.PromptChanged || pd.GreetingChanged {
			d.PersonaChanges = append(d.PersonaChanges, pd)
		}
	}

	for group := range newPersonas {
		if _, exists := oldPersonas[group]; !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{AgeGroup: group, Added: true})
		}
	}

	slices.SortFunc(d.PersonaChanges, func(a, b PersonaDiff) int {
		return strings.Compare(a.AgeGroup, b.AgeGroup)
	})
	d.PersonasChanged = len(d.PersonaChanges) > 0
	return d
}
