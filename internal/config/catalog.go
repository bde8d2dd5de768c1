package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"evcal/internal/dateutil"
	"evcal/internal/model"
)

// catalogNamespace seeds deterministic IDs for catalog events that do
// not declare one, so feed UIDs survive restarts.
var catalogNamespace = uuid.MustParse("6f1c2f43-8a0e-4f7e-9d52-4b1e3f0c9a77")

// Catalog is the on-disk list of event definitions.
type Catalog struct {
	Events []model.Event `yaml:"events"`
}

// LoadCatalog reads the YAML event catalog at path.
//
// Events without an ID get a name-based UUID; a missing EndDate defaults
// to the StartDate. Dates are truncated to civil dates.
func LoadCatalog(path string) ([]model.Event, error) {
	if path == "" {
		return nil, pkgerrors.New("catalog path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML.
func ParseCatalog(data []byte) ([]model.Event, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, pkgerrors.Wrap(err, "decode catalog")
	}

	seen := make(map[string]bool, len(cat.Events))
	for i := range cat.Events {
		ev := &cat.Events[i]
		if ev.StartDate.IsZero() {
			return nil, pkgerrors.Errorf("catalog event %d (%q): start_date is required", i, ev.Summary)
		}
		ev.StartDate = dateutil.Truncate(ev.StartDate)
		if ev.EndDate.IsZero() {
			ev.EndDate = ev.StartDate
		} else {
			ev.EndDate = dateutil.Truncate(ev.EndDate)
		}
		if !ev.Rule.StopDate.IsZero() {
			ev.Rule.StopDate = dateutil.Truncate(ev.Rule.StopDate)
		}
		if ev.ID == "" {
			ev.ID = EventID(ev.Summary, ev.StartDate.Format(dateutil.DateLayout), i)
		}
		if seen[ev.ID] {
			return nil, pkgerrors.Errorf("catalog event %d: duplicate id %q", i, ev.ID)
		}
		seen[ev.ID] = true
	}
	return cat.Events, nil
}

// EventID derives a stable UUID from an event's summary, start and position.
func EventID(summary, start string, index int) string {
	name := fmt.Sprintf("%s|%s|%d", summary, start, index)
	return uuid.NewSHA1(catalogNamespace, []byte(name)).String()
}

// SaveCatalog writes events back as catalog YAML.
func SaveCatalog(path string, events []model.Event) error {
	data, err := yaml.Marshal(Catalog{Events: events})
	if err != nil {
		return pkgerrors.Wrap(err, "encode catalog")
	}
	return writeAtomic(path, data, ".evcal-events-*.tmp")
}
