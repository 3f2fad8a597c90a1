// Package config loads tenant configuration: the class/event tables
// that drive lifecycle hooks, room aliases for hand-off delivery, and
// reference datasets. Files are YAML, decoded strictly and validated
// against an embedded CUE schema before use.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is one tenant's parsed configuration.
type Config struct {
	// UID identifies the configuration. Node uids minted under this
	// tenant carry it as their first segment.
	UID string `yaml:"uid"`

	// Classes maps a node class name to its event table.
	Classes map[string]Class `yaml:"classes,omitempty"`

	// Rooms maps a room alias to the room uid it delivers to.
	Rooms map[string]string `yaml:"rooms,omitempty"`

	// Datasets are named reference collections with optional view
	// templates, consulted by hook handlers.
	Datasets []Dataset `yaml:"datasets,omitempty"`
}

// Class is the per-class slice of the event table.
type Class struct {
	Events []Event `yaml:"events,omitempty"`
}

// Event binds an event name (and optionally a listener id) to an
// ordered action list.
type Event struct {
	Event    string   `yaml:"event"`
	Listener string   `yaml:"listener,omitempty"`
	Actions  []Action `yaml:"actions"`
}

// Action names a handler method to run.
type Action struct {
	Method string `yaml:"method"`
}

// Dataset is a named reference collection. View is a display template
// with {field} placeholders.
type Dataset struct {
	Name  string                    `yaml:"name"`
	View  string                    `yaml:"view,omitempty"`
	Items map[string]map[string]any `yaml:"items,omitempty"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration document. Unknown fields are
// rejected, then the document is validated against the embedded CUE
// schema.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateSchema(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode config document: %w", err)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// Actions resolves the ordered handler method names for (class, event,
// listener). Entries naming a listener require an exact match;
// listener-less entries always match. Without a listener only the
// listener-less entries fire.
func (c *Config) Actions(class, event, listener string) []string {
	cls, ok := c.Classes[class]
	if !ok {
		return nil
	}

	var methods []string
	for _, e := range cls.Events {
		if e.Event != event {
			continue
		}
		if listener != "" {
			if e.Listener != "" && e.Listener != listener {
				continue
			}
		} else if e.Listener != "" {
			continue
		}
		for _, a := range e.Actions {
			methods = append(methods, a.Method)
		}
	}
	return methods
}

// ResolveRoom maps a room alias to its room uid. A UUID-shaped value
// is already a room uid and passes through unchanged. Unknown aliases
// resolve to "".
func (c *Config) ResolveRoom(aliasOrUID string) string {
	if uuid.Validate(aliasOrUID) == nil {
		return aliasOrUID
	}
	return c.Rooms[aliasOrUID]
}

// Dataset returns the named dataset.
func (c *Config) Dataset(name string) (*Dataset, bool) {
	for i := range c.Datasets {
		if c.Datasets[i].Name == name {
			return &c.Datasets[i], true
		}
	}
	return nil, false
}

// Get returns the dataset item by id.
func (d *Dataset) Get(itemID string) (map[string]any, bool) {
	item, ok := d.Items[itemID]
	return item, ok
}

var viewFieldPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// ViewOf renders the dataset's view template for an item, replacing
// {field} placeholders with the item's field values. Without a
// template the item's title, name, or id field is used, falling back
// to the item id itself.
func (d *Dataset) ViewOf(itemID string) (string, bool) {
	item, ok := d.Items[itemID]
	if !ok {
		return "", false
	}

	if d.View == "" {
		for _, key := range []string{"title", "name", "id"} {
			if v, ok := item[key]; ok {
				return fmt.Sprint(v), true
			}
		}
		return itemID, true
	}

	rendered := viewFieldPattern.ReplaceAllStringFunc(d.View, func(m string) string {
		field := m[1 : len(m)-1]
		v, ok := item[field]
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	})
	return rendered, true
}
