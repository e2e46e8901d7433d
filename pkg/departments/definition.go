package departments

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the on-disk shape of a department graph.
type Definition struct {
	Stages        []string         `yaml:"stages"`
	Skips         []EdgeDefinition `yaml:"skips,omitempty"`
	Reworks       []EdgeDefinition `yaml:"reworks,omitempty"`
	MaxReworkHops int              `yaml:"max_rework_hops,omitempty"`
}

type EdgeDefinition struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	When string `yaml:"when,omitempty"`
}

// DefaultDefinition is the shop pipeline used when no definition file is configured.
func DefaultDefinition() Definition {
	return Definition{
		Stages: []string{
			"P1 Production Queue",
			"Layup/Plugging",
			"Barcode",
			"CNC",
			"Finish",
			"Gunsmith",
			"Paint",
			"Shipping QC",
			"Shipping",
		},
		Skips: []EdgeDefinition{
			{From: "P1 Production Queue", To: "Shipping QC", When: string(ConditionNoStockModel)},
			{From: "Layup/Plugging", To: "Finish", When: flagPrefix + "flattop"},
		},
		Reworks: []EdgeDefinition{
			{From: "Shipping QC", To: "Paint"},
			{From: "Shipping QC", To: "Finish"},
		},
		MaxReworkHops: DefaultMaxReworkHops,
	}
}

// Default builds the graph of DefaultDefinition.
func Default() *Graph {
	g, err := New(DefaultDefinition())
	if err != nil {
		panic(err)
	}

	return g
}

// Load decodes a YAML definition and builds its graph. Unknown keys are rejected.
func Load(r io.Reader) (*Graph, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var def Definition
	if err := decoder.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, definitionError("empty document")
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return New(def)
}

// LoadFile reads the definition at path; an empty path yields the default graph.
func LoadFile(path string) (*Graph, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read department graph %s: %w", path, err)
	}

	return Load(bytes.NewReader(data))
}

// New validates def and builds its graph.
func New(def Definition) (*Graph, error) {
	if len(def.Stages) == 0 {
		return nil, definitionError("at least one stage is required")
	}

	hops := def.MaxReworkHops
	if hops == 0 {
		hops = DefaultMaxReworkHops
	}

	if hops < 0 {
		return nil, definitionError("max_rework_hops must be positive, got %d", hops)
	}

	g := &Graph{
		stages:        make([]Stage, 0, len(def.Stages)),
		byName:        make(map[string]StageID, len(def.Stages)),
		outgoing:      make([][]Edge, len(def.Stages)),
		maxReworkHops: hops,
	}

	for i, name := range def.Stages {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, definitionError("stage %d has no name", i)
		}

		if _, dup := g.byName[name]; dup {
			return nil, definitionError("duplicate stage %q", name)
		}

		id := StageID(i)
		g.stages = append(g.stages, Stage{ID: id, Name: name})
		g.byName[name] = id
	}

	for i := range len(g.stages) - 1 {
		from := StageID(i)
		g.outgoing[from] = append(g.outgoing[from], Edge{From: from, To: from + 1, Kind: EdgeForward})
	}

	for _, d := range def.Skips {
		e, err := g.declaredEdge(d, EdgeSkip)
		if err != nil {
			return nil, err
		}

		if e.To <= e.From+1 {
			return nil, definitionError("skip %q -> %q must jump forward past the next stage", d.From, d.To)
		}

		g.outgoing[e.From] = append(g.outgoing[e.From], e)
	}

	for _, d := range def.Reworks {
		if d.When != "" {
			return nil, definitionError("rework %q -> %q cannot carry a condition", d.From, d.To)
		}

		e, err := g.declaredEdge(d, EdgeRework)
		if err != nil {
			return nil, err
		}

		if e.To >= e.From {
			return nil, definitionError("rework %q -> %q must point to an earlier stage", d.From, d.To)
		}

		if span := int(e.From - e.To); span > hops {
			return nil, definitionError("rework %q -> %q returns after %d hops, limit is %d", d.From, d.To, span, hops)
		}

		g.outgoing[e.From] = append(g.outgoing[e.From], e)
	}

	return g, nil
}

func (g *Graph) declaredEdge(d EdgeDefinition, kind EdgeKind) (Edge, error) {
	from, ok := g.Lookup(strings.TrimSpace(d.From))
	if !ok {
		return Edge{}, definitionError("%s edge from unknown stage %q", kind, d.From)
	}

	to, ok := g.Lookup(strings.TrimSpace(d.To))
	if !ok {
		return Edge{}, definitionError("%s edge to unknown stage %q", kind, d.To)
	}

	if g.CanTransition(from, to) {
		return Edge{}, definitionError("duplicate edge %q -> %q", d.From, d.To)
	}

	when, err := ParseCondition(d.When)
	if err != nil {
		return Edge{}, err
	}

	return Edge{From: from, To: to, Kind: kind, When: when}, nil
}
