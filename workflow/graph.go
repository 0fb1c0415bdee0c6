package workflow

import "fmt"

// NodeKind distinguishes how the executor drives a node.
type NodeKind string

const (
	// NodeKindStep executes a single registered step sequentially.
	NodeKindStep NodeKind = "step"
	// NodeKindFanOut launches a declared group of steps concurrently and
	// joins them leniently.
	NodeKindFanOut NodeKind = "fanout"
)

// RoutingFunc is a pure, deterministic routing decision evaluated on
// already-merged state. It returns the name of the next node.
type RoutingFunc func(state State) (string, error)

// Branch is one member of a fan-out group. Inputs is the fixed list of
// fields projected into the branch; the branch sees nothing else.
type Branch struct {
	Name   string
	Step   string
	Inputs []string
}

// FanOutGroup declares a set of branches executed concurrently, followed by
// a join step. The join's synthetic input is keyed by branch name: the
// branch's PartialUpdate on success, or a *BranchFailure marker.
type FanOutGroup struct {
	Branches []Branch
	Join     string
}

// Node is a named vertex of the workflow graph. Exactly one of Next or Route
// may be set; a node with neither is a graph sink. Inputs declares the fields
// projected into a sequential step (ignored for fan-out nodes, whose branches
// carry their own input lists).
type Node struct {
	Name   string
	Kind   NodeKind
	Step   string
	Inputs []string
	Group  *FanOutGroup
	Next   string
	Route  RoutingFunc
}

// Graph is the static set of named nodes and edges a run executes. Build it
// once at startup and validate before use; the executor never mutates it.
type Graph struct {
	nodes map[string]*Node
	entry string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode adds a node; duplicate names are rejected.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.Name == "" {
		return fmt.Errorf("node must have a name")
	}
	if _, exists := g.nodes[n.Name]; exists {
		return fmt.Errorf("node %q already in graph", n.Name)
	}
	g.nodes[n.Name] = n
	return nil
}

// MustAddNode is AddNode that panics, for static graph construction.
func (g *Graph) MustAddNode(n *Node) {
	if err := g.AddNode(n); err != nil {
		panic(err)
	}
}

// SetEntry names the node a run starts at.
func (g *Graph) SetEntry(name string) { g.entry = name }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Node looks up a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns the node map (callers must not mutate it).
func (g *Graph) Nodes() map[string]*Node { return g.nodes }

// Validate checks structural integrity against a registry: entry set, every
// referenced step registered, every unconditional edge resolvable, fan-out
// groups well-formed. Routing functions are checked at runtime since their
// targets depend on state.
func (g *Graph) Validate(reg *Registry) error {
	if g.entry == "" {
		return fmt.Errorf("graph has no entry node")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry node %q not in graph", g.entry)
	}
	for name, n := range g.nodes {
		if n.Next != "" && n.Route != nil {
			return fmt.Errorf("node %q has both an unconditional edge and a routing function", name)
		}
		if n.Next != "" {
			if _, ok := g.nodes[n.Next]; !ok {
				return fmt.Errorf("node %q: edge target %q not in graph", name, n.Next)
			}
		}
		switch n.Kind {
		case NodeKindStep:
			if _, ok := reg.Get(n.Step); !ok {
				return fmt.Errorf("node %q: step %q not registered", name, n.Step)
			}
		case NodeKindFanOut:
			if n.Group == nil || len(n.Group.Branches) == 0 {
				return fmt.Errorf("node %q: fan-out group has no branches", name)
			}
			seen := make(map[string]bool, len(n.Group.Branches))
			for _, b := range n.Group.Branches {
				if b.Name == "" {
					return fmt.Errorf("node %q: fan-out branch without a name", name)
				}
				if seen[b.Name] {
					return fmt.Errorf("node %q: duplicate branch %q", name, b.Name)
				}
				seen[b.Name] = true
				if _, ok := reg.Get(b.Step); !ok {
					return fmt.Errorf("node %q branch %q: step %q not registered", name, b.Name, b.Step)
				}
			}
			if n.Group.Join == "" {
				return fmt.Errorf("node %q: fan-out group has no join step", name)
			}
			if _, ok := reg.Get(n.Group.Join); !ok {
				return fmt.Errorf("node %q: join step %q not registered", name, n.Group.Join)
			}
		default:
			return fmt.Errorf("node %q: unknown kind %q", name, n.Kind)
		}
	}
	return nil
}
