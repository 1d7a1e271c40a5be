// Package engines holds the static descriptors for the Knowledge Bank
// engines and universes exposed at /api/engines.
package engines

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/knowledge-bank/kb-cloud/config"
)

// Engine identifiers that accept jobs.
const (
	ProfitEngineID = "profit-engine"
	ZalaraID       = "zalara"
	SignalForgeID  = "signal-forge"
)

// Kind distinguishes job-running engines from story universes.
type Kind string

const (
	KindEngine   Kind = "engine"
	KindUniverse Kind = "universe"
)

// Engine describes one catalog entry.
type Engine struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Slug        string `yaml:"slug" json:"slug"`
	Role        string `yaml:"role" json:"role"`
	Description string `yaml:"description" json:"description"`
	Kind        Kind   `yaml:"kind" json:"kind"`
}

// Catalog is an ordered, read-only list of engines.
type Catalog struct {
	engines []Engine
	byID    map[string]int
}

var defaultEngines = []Engine{
	{
		ID:          ProfitEngineID,
		Name:        "Profit Engine & Hobby Lines",
		Slug:        ProfitEngineID,
		Role:        "SPORTS · MARKETS · RISK",
		Description: "Backtests angles, tracks bankroll, enforces rules, and runs experiments for sports and trading.",
		Kind:        KindEngine,
	},
	{
		ID:          ZalaraID,
		Name:        "Zalara",
		Slug:        ZalaraID,
		Role:        "CREATIVE ENGINE",
		Description: "Turns structured jobs into promos, thumbnails, and visuals for books, apps, and campaigns.",
		Kind:        KindEngine,
	},
	{
		ID:          SignalForgeID,
		Name:        "Signal Forge & Opportunity Engine",
		Slug:        SignalForgeID,
		Role:        "SIGNALS & IDEAS",
		Description: "Scans sports, products, and markets for patterns, then routes promising ideas to the right engine.",
		Kind:        KindEngine,
	},
	{
		ID:          "universes-books",
		Name:        "Universes & books",
		Slug:        "universes-books",
		Role:        "STORY WORLDS",
		Description: "KB powers book series and story worlds built on real data, simulations, and what-if logic.",
		Kind:        KindUniverse,
	},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultEngines)
	if err != nil {
		panic(err)
	}
	return c
}

// New fills defaults, validates engines and builds a catalog preserving
// their order.
func New(engines []Engine) (*Catalog, error) {
	c := &Catalog{
		engines: make([]Engine, len(engines)),
		byID:    make(map[string]int, len(engines)),
	}
	copy(c.engines, engines)
	for i, e := range c.engines {
		if e.Slug == "" {
			c.engines[i].Slug = e.ID
		}
		if e.Kind == "" {
			c.engines[i].Kind = KindEngine
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	for i, e := range c.engines {
		c.byID[e.ID] = i
	}
	return c, nil
}

// Validate checks that ids are present and unique and that every kind is
// known.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.engines))
	for i, e := range c.engines {
		if e.ID == "" {
			return fmt.Errorf("engine %d: missing id", i)
		}
		switch e.Kind {
		case KindEngine, KindUniverse:
		default:
			return fmt.Errorf("engine %s: unknown kind %q", e.ID, e.Kind)
		}
		if seen[e.ID] {
			return fmt.Errorf("engine %s: duplicate id", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

type catalogFile struct {
	Engines []Engine `yaml:"engines"`
}

// Load reads a YAML catalog; ${VAR} references are expanded first. An empty
// path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engines config: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal([]byte(config.ExpandEnvVars(string(data))), &f); err != nil {
		return nil, fmt.Errorf("failed to parse engines config: %w", err)
	}
	if len(f.Engines) == 0 {
		return nil, fmt.Errorf("engines config %s lists no engines", path)
	}
	return New(f.Engines)
}

// All returns a copy of the engines in catalog order.
func (c *Catalog) All() []Engine {
	out := make([]Engine, len(c.engines))
	copy(out, c.engines)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.engines) }

// Get looks an engine up by id.
func (c *Catalog) Get(id string) (Engine, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Engine{}, false
	}
	return c.engines[i], true
}
