// Package catalog is the read-only persona directory.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/symposium/internal/domain"
)

//go:embed personas.yaml
var defaultCatalog []byte

// CustomGroupName is the display name of groups assembled by the user.
const CustomGroupName = "Custom Debate"

type personaEntry struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Color             string   `yaml:"color"`
	Bio               string   `yaml:"bio"`
	MajorWorks        []string `yaml:"major_works"`
	SystemInstruction string   `yaml:"system_instruction"`
}

type groupEntry struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

type file struct {
	Personas []personaEntry `yaml:"personas"`
	Groups   []groupEntry   `yaml:"groups"`
}

// Catalog implements domain.PersonaDirectory.
type Catalog struct {
	personas []*domain.Persona
	byID     map[domain.PersonaID]*domain.Persona
	groups   []domain.ChatTarget
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog from path, or the built-in one when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open persona catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	var raw file
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode persona catalog: %w", err)
	}
	if len(raw.Personas) == 0 {
		return nil, errors.New("persona catalog is empty")
	}

	c := &Catalog{byID: make(map[domain.PersonaID]*domain.Persona, len(raw.Personas))}
	for _, e := range raw.Personas {
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("persona catalog: entry without id or name")
		}
		if e.SystemInstruction == "" {
			return nil, fmt.Errorf("persona catalog: %s has no system instruction", e.ID)
		}
		id := domain.PersonaID(e.ID)
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("persona catalog: duplicate id %s", e.ID)
		}
		p := &domain.Persona{
			ID:                id,
			DisplayName:       e.Name,
			SystemInstruction: e.SystemInstruction,
			Bio:               e.Bio,
			MajorWorks:        e.MajorWorks,
			Color:             e.Color,
		}
		c.personas = append(c.personas, p)
		c.byID[id] = p
	}

	for _, g := range raw.Groups {
		members := make([]domain.PersonaID, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, domain.PersonaID(m))
		}
		target, err := c.group(g.ID, g.Name, members)
		if err != nil {
			return nil, fmt.Errorf("persona catalog: group %s: %w", g.ID, err)
		}
		c.groups = append(c.groups, target)
	}
	return c, nil
}

// List returns the personas in catalog order.
func (c *Catalog) List() []*domain.Persona {
	return append([]*domain.Persona(nil), c.personas...)
}

func (c *Catalog) Get(id domain.PersonaID) (*domain.Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Groups returns the predefined debate groups.
func (c *Catalog) Groups() []domain.ChatTarget {
	out := make([]domain.ChatTarget, 0, len(c.groups))
	for _, g := range c.groups {
		g.Members = append([]domain.PersonaID(nil), g.Members...)
		out = append(out, g)
	}
	return out
}

// PersonaTarget is the chat target for a one-on-one conversation.
func (c *Catalog) PersonaTarget(id domain.PersonaID) (domain.ChatTarget, error) {
	p, ok := c.byID[id]
	if !ok {
		return domain.ChatTarget{}, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, id)
	}
	return domain.ChatTarget{
		Kind:    domain.TargetPersona,
		ID:      string(p.ID),
		Name:    p.DisplayName,
		Members: []domain.PersonaID{p.ID},
	}, nil
}

// GroupTarget returns a predefined group by id.
func (c *Catalog) GroupTarget(id string) (domain.ChatTarget, error) {
	for _, g := range c.Groups() {
		if g.ID == id {
			return g, nil
		}
	}
	return domain.ChatTarget{}, fmt.Errorf("%w: group %s", domain.ErrPersonaNotFound, id)
}

// CustomTarget assembles a debate from personas picked by the user. Members
// speak in the given order.
func (c *Catalog) CustomTarget(members []domain.PersonaID, now time.Time) (domain.ChatTarget, error) {
	return c.group(fmt.Sprintf("custom-%d", now.UnixMilli()), CustomGroupName, members)
}

func (c *Catalog) group(id, name string, members []domain.PersonaID) (domain.ChatTarget, error) {
	if len(members) < 2 {
		return domain.ChatTarget{}, errors.New("a debate needs at least two personas")
	}
	seen := make(map[domain.PersonaID]struct{}, len(members))
	for _, m := range members {
		if _, ok := c.byID[m]; !ok {
			return domain.ChatTarget{}, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, m)
		}
		if _, dup := seen[m]; dup {
			return domain.ChatTarget{}, fmt.Errorf("persona %s listed twice", m)
		}
		seen[m] = struct{}{}
	}
	return domain.ChatTarget{
		Kind:    domain.TargetGroup,
		ID:      id,
		Name:    name,
		Members: append([]domain.PersonaID(nil), members...),
	}, nil
}
