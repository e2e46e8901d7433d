// Package departments holds the static pipeline of production stages and the
// transitions allowed between them.
package departments

import (
	"slices"

	"github.com/dukex/prodflow/pkg/models"
)

// DefaultMaxReworkHops bounds how far back a rework edge may reach.
const DefaultMaxReworkHops = 4

// StageID is the dense ordinal of a stage in its graph.
type StageID int

// NoStage is returned by lookups that found nothing.
const NoStage StageID = -1

type EdgeKind string

const (
	EdgeForward EdgeKind = "forward"
	EdgeSkip    EdgeKind = "skip"
	EdgeRework  EdgeKind = "rework"
)

// TransitionKind maps an edge to the audit kind recorded when it is taken.
func (k EdgeKind) TransitionKind() models.TransitionKind {
	switch k {
	case EdgeSkip:
		return models.TransitionSkip
	case EdgeRework:
		return models.TransitionRework
	default:
		return models.TransitionForward
	}
}

type Stage struct {
	ID   StageID `json:"id"`
	Name string  `json:"name"`
}

type Edge struct {
	From StageID   `json:"from"`
	To   StageID   `json:"to"`
	Kind EdgeKind  `json:"kind"`
	When Condition `json:"-"`
}

// Graph is immutable once built and safe for concurrent use.
type Graph struct {
	stages        []Stage
	byName        map[string]StageID
	outgoing      [][]Edge
	maxReworkHops int
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.stages)
}

// Stages returns the stages in pipeline order.
func (g *Graph) Stages() []Stage {
	return slices.Clone(g.stages)
}

func (g *Graph) MaxReworkHops() int {
	return g.maxReworkHops
}

// Lookup resolves a stage name to its id.
func (g *Graph) Lookup(name string) (StageID, bool) {
	id, ok := g.byName[name]
	if !ok {
		return NoStage, false
	}

	return id, true
}

// Name returns the stage name for id, or "" when id is out of range.
func (g *Graph) Name(id StageID) string {
	if !g.valid(id) {
		return ""
	}

	return g.stages[id].Name
}

// Entry is the stage every admitted order starts in.
func (g *Graph) Entry() StageID {
	return 0
}

// IsTerminal reports whether id is the last stage of the forward path.
func (g *Graph) IsTerminal(id StageID) bool {
	return int(id) == len(g.stages)-1
}

// Edges lists the transitions declared out of from, forward edge first.
func (g *Graph) Edges(from StageID) []Edge {
	if !g.valid(from) {
		return nil
	}

	return slices.Clone(g.outgoing[from])
}

// CanTransition reports whether an edge from -> to exists.
func (g *Graph) CanTransition(from, to StageID) bool {
	_, ok := g.edge(from, to)

	return ok
}

// NextDefault returns the normal forward stage after from.
func (g *Graph) NextDefault(from StageID) (StageID, bool) {
	if !g.valid(from) || g.IsTerminal(from) {
		return NoStage, false
	}

	return from + 1, true
}

// Route picks the stage an order goes to when the caller did not ask for one:
// the first conditional skip edge whose condition holds, otherwise the forward edge.
func (g *Graph) Route(from StageID, o *models.ProductionOrder) (StageID, EdgeKind, bool) {
	if !g.valid(from) {
		return NoStage, "", false
	}

	for _, e := range g.outgoing[from] {
		if e.Kind == EdgeSkip && e.When.Matches(o) {
			return e.To, EdgeSkip, true
		}
	}

	next, ok := g.NextDefault(from)
	if !ok {
		return NoStage, "", false
	}

	return next, EdgeForward, true
}

// Validate returns the kind of the edge from -> to or an *IllegalTransitionError.
func (g *Graph) Validate(from, to StageID) (EdgeKind, error) {
	e, ok := g.edge(from, to)
	if !ok {
		return "", &IllegalTransitionError{From: g.Name(from), To: g.Name(to)}
	}

	return e.Kind, nil
}

// ValidateNames is Validate for names arriving from outside the engine.
// Unknown stage names are illegal transitions, not lookup failures.
func (g *Graph) ValidateNames(from, to string) (StageID, StageID, EdgeKind, error) {
	fromID, ok := g.Lookup(from)
	if !ok {
		return NoStage, NoStage, "", &IllegalTransitionError{From: from, To: to, Reason: "unknown source stage"}
	}

	toID, ok := g.Lookup(to)
	if !ok {
		return NoStage, NoStage, "", &IllegalTransitionError{From: from, To: to, Reason: "unknown target stage"}
	}

	kind, err := g.Validate(fromID, toID)
	if err != nil {
		return NoStage, NoStage, "", err
	}

	return fromID, toID, kind, nil
}

func (g *Graph) edge(from, to StageID) (Edge, bool) {
	if !g.valid(from) || !g.valid(to) {
		return Edge{}, false
	}

	for _, e := range g.outgoing[from] {
		if e.To == to {
			return e, true
		}
	}

	return Edge{}, false
}

func (g *Graph) valid(id StageID) bool {
	return id >= 0 && int(id) < len(g.stages)
}
