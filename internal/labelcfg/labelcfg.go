// Package labelcfg loads the workflow label configuration and builds the
// lookup tables the coordinator, transition protocol, and validator share.
// Configuration is all-or-nothing: any invariant violation fails the load.
package labelcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Category classifies what a status label means for automation.
type Category string

const (
	CategoryHumanAction Category = "human_action" // no bot will touch the issue
	CategoryBotPickup   Category = "bot_pickup"   // idle, awaiting automated pickup
	CategoryBotBusy     Category = "bot_busy"     // a worker has claimed the issue
	CategoryIgnore      Category = "ignore"       // excluded from the workflow entirely
)

func (c Category) valid() bool {
	switch c {
	case CategoryHumanAction, CategoryBotPickup, CategoryBotBusy, CategoryIgnore:
		return true
	}
	return false
}

// Label is one workflow label definition. Name is the wire identifier at
// the tracker; InternalID is the stable identifier used in code paths, so
// labels can be renamed without code changes.
type Label struct {
	Name                string   `json:"name"`
	Color               string   `json:"color"`
	Description         string   `json:"description"`
	Category            Category `json:"category"`
	InternalID          string   `json:"internal_id"`
	StaleTimeoutMinutes int      `json:"stale_timeout_minutes,omitempty"`
}

// Config is the parsed labels.json.
type Config struct {
	WorkflowLabels []Label  `json:"workflow_labels"`
	IgnoreLabels   []string `json:"ignore_labels"`
}

// Lookups holds the bidirectional tables built from a Config.
type Lookups struct {
	IDToName       map[string]string
	NameToID       map[string]string
	NameToCategory map[string]Category
	WorkflowNames  map[string]bool
	ByName         map[string]Label
	IgnoreNames    map[string]bool
}

var colorPattern = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// Load reads and validates labels.json at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labelcfg: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("labelcfg: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("labelcfg: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	seenNames := make(map[string]bool)
	seenIDs := make(map[string]bool)
	for _, l := range c.WorkflowLabels {
		if l.Name == "" || l.InternalID == "" {
			return fmt.Errorf("label missing name or internal_id: %+v", l)
		}
		if seenNames[l.Name] {
			return fmt.Errorf("duplicate label name %q", l.Name)
		}
		if seenIDs[l.InternalID] {
			return fmt.Errorf("duplicate internal_id %q", l.InternalID)
		}
		seenNames[l.Name] = true
		seenIDs[l.InternalID] = true
		if !l.Category.valid() {
			return fmt.Errorf("label %q: unknown category %q", l.Name, l.Category)
		}
		if l.Color != "" && !colorPattern.MatchString(l.Color) {
			return fmt.Errorf("label %q: color %q is not 6 hex chars", l.Name, l.Color)
		}
		if l.Category == CategoryBotBusy && l.StaleTimeoutMinutes <= 0 {
			return fmt.Errorf("label %q: bot_busy labels require a positive stale_timeout_minutes", l.Name)
		}
	}
	return nil
}

// BuildLookups constructs all lookup tables in one pass.
func (c *Config) BuildLookups() *Lookups {
	lk := &Lookups{
		IDToName:       make(map[string]string, len(c.WorkflowLabels)),
		NameToID:       make(map[string]string, len(c.WorkflowLabels)),
		NameToCategory: make(map[string]Category, len(c.WorkflowLabels)),
		WorkflowNames:  make(map[string]bool, len(c.WorkflowLabels)),
		ByName:         make(map[string]Label, len(c.WorkflowLabels)),
		IgnoreNames:    make(map[string]bool, len(c.IgnoreLabels)),
	}
	for _, l := range c.WorkflowLabels {
		lk.IDToName[l.InternalID] = l.Name
		lk.NameToID[l.Name] = l.InternalID
		lk.NameToCategory[l.Name] = l.Category
		lk.WorkflowNames[l.Name] = true
		lk.ByName[l.Name] = l
	}
	for _, name := range c.IgnoreLabels {
		lk.IgnoreNames[name] = true
	}
	return lk
}
