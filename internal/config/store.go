package config

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/synthesis/internal/formula"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/synerr"
)

// Store is the Config Store (spec.md §4.1): a normalized, indexed view
// over one loaded configuration document. Everything here is built
// eagerly at Load time and is immutable afterward, safe to share
// read-only across every entity spawned against it — mirroring the
// "exclusiveGroups and thresholdModifiers indexes are config-immutable"
// guarantee in spec.md §5.
type Store struct {
	TickRate time.Duration

	nodeIndex   map[string]*node.Node
	nodesByKind map[string][]*node.Node

	relBySource map[string][]*node.Relationship
	relByTarget map[string][]*node.Relationship
	relByType   map[node.RelationshipType][]*node.Relationship

	thresholdModifiers   []*node.Node
	thresholdTraitsByVar map[string][]*node.Node

	exclusiveGroups map[string]map[string]bool

	formulaCache map[string]*formula.Compiled

	presets map[string]Preset
	pools   map[string]PoolSpec
}

// Load decodes, normalizes, validates, and indexes a configuration
// document read from r.
func Load(r io.Reader) (*Store, error) {
	var raw RawDocument
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, &synerr.ConfigError{Reason: fmt.Sprintf("yaml decode: %v", err)}
	}
	return build(raw)
}

func build(raw RawDocument) (*Store, error) {
	s := &Store{
		TickRate:             time.Duration(DefaultTickRateMS) * time.Millisecond,
		nodeIndex:            make(map[string]*node.Node),
		nodesByKind:          make(map[string][]*node.Node),
		relBySource:          make(map[string][]*node.Relationship),
		relByTarget:          make(map[string][]*node.Relationship),
		relByType:            make(map[node.RelationshipType][]*node.Relationship),
		thresholdTraitsByVar: make(map[string][]*node.Node),
		exclusiveGroups:      make(map[string]map[string]bool),
		formulaCache:         make(map[string]*formula.Compiled),
		presets:              make(map[string]Preset),
		pools:                make(map[string]PoolSpec),
	}
	if raw.TickRate != nil {
		s.TickRate = time.Duration(*raw.TickRate) * time.Millisecond
	}

	seen := make(map[string]bool, len(raw.Nodes))
	for _, rn := range raw.Nodes {
		if rn.ID == "" {
			return nil, &synerr.ConfigError{Reason: "node with empty id"}
		}
		if seen[rn.ID] {
			return nil, &synerr.ConfigError{Reason: fmt.Sprintf("duplicate node id %q", rn.ID)}
		}
		seen[rn.ID] = true

		n, err := normalizeNode(rn)
		if err != nil {
			return nil, &synerr.ConfigError{Reason: err.Error()}
		}
		np := n
		np.DeclIndex = len(s.nodeIndex)
		s.nodeIndex[n.ID] = &np
		s.nodesByKind[n.Kind.String()] = append(s.nodesByKind[n.Kind.String()], &np)
		if n.Kind == node.KindTrait {
			s.nodesByKind["_traits"] = append(s.nodesByKind["_traits"], &np)
		}
	}

	for _, rr := range raw.Relationships {
		if rr.SourceID == "" || rr.TargetID == "" {
			return nil, &synerr.ConfigError{Reason: "relationship missing sourceId/targetId"}
		}
		if _, ok := s.nodeIndex[rr.SourceID]; !ok {
			return nil, &synerr.ConfigError{Reason: fmt.Sprintf("relationship references unknown sourceId %q", rr.SourceID)}
		}
		if _, ok := s.nodeIndex[rr.TargetID]; !ok {
			return nil, &synerr.ConfigError{Reason: fmt.Sprintf("relationship references unknown targetId %q", rr.TargetID)}
		}
		rel := normalizeRelationship(rr)
		rp := rel
		s.relBySource[rel.SourceID] = append(s.relBySource[rel.SourceID], &rp)
		s.relByTarget[rel.TargetID] = append(s.relByTarget[rel.TargetID], &rp)
		s.relByType[rel.Type] = append(s.relByType[rel.Type], &rp)
	}

	for _, rp := range raw.Presets {
		s.presets[rp.ID] = normalizePreset(rp)
	}
	for _, rp := range raw.Pools {
		s.pools[rp.ID] = normalizePool(rp)
	}

	for _, warning := range findReplacesCycles(s) {
		slog.Warn("config: cyclic replaces chain", "trait", warning)
	}

	s.buildThresholdIndexes()
	if err := s.buildExclusiveGroups(); err != nil {
		return nil, err
	}
	if err := s.buildFormulaCache(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) buildThresholdIndexes() {
	for _, n := range s.nodesByKind[node.KindModifier.String()] {
		if n.Modifier != nil && n.Modifier.Trigger != nil {
			s.thresholdModifiers = append(s.thresholdModifiers, n)
		}
	}
	for _, n := range s.nodesByKind["_traits"] {
		trig := n.Trait.Selection.Trigger
		if trig == nil {
			continue
		}
		for _, c := range trig.Conditions {
			if c.Target != "" {
				s.thresholdTraitsByVar[c.Target] = append(s.thresholdTraitsByVar[c.Target], n)
			}
		}
	}
}

// buildExclusiveGroups computes the symmetric transitive closure of
// every modifier's exclusiveWith list: union-find over string ids.
func (s *Store) buildExclusiveGroups() error {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, n := range s.nodesByKind[node.KindModifier.String()] {
		find(n.ID)
		for _, other := range n.Modifier.ExclusiveWith {
			if _, ok := s.nodeIndex[other]; !ok {
				return &synerr.ConfigError{Reason: fmt.Sprintf("modifier %q exclusiveWith references unknown id %q", n.ID, other)}
			}
			union(n.ID, other)
		}
	}

	groups := make(map[string][]string)
	for id := range parent {
		root := find(id)
		groups[root] = append(groups[root], id)
	}
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		for _, m := range members {
			set := make(map[string]bool, len(members)-1)
			for _, other := range members {
				if other != m {
					set[other] = true
				}
			}
			s.exclusiveGroups[m] = set
		}
	}
	return nil
}

func (s *Store) buildFormulaCache() error {
	for _, n := range s.nodesByKind[node.KindDerived.String()] {
		if n.Derived.Formula == "" {
			continue
		}
		if _, ok := s.formulaCache[n.Derived.Formula]; ok {
			continue
		}
		c, err := formula.Compile(n.Derived.Formula)
		if err != nil {
			return &synerr.ConfigError{Reason: fmt.Sprintf("derived %q: %v", n.ID, err)}
		}
		s.formulaCache[n.Derived.Formula] = c
	}
	return nil
}

// findReplacesCycles walks every trait's replaces[] chain and returns
// the ids of traits whose chain cycles back on itself. Reported only —
// spec.md §4.1 does not fail loadConfig on this condition.
func findReplacesCycles(s *Store) []string {
	var warnings []string
	for _, n := range s.nodesByKind["_traits"] {
		visited := map[string]bool{n.ID: true}
		for _, next := range n.Trait.Selection.Replaces {
			id := next
			for depth := 0; depth < len(s.nodeIndex)+1; depth++ {
				if id == n.ID {
					warnings = append(warnings, n.ID)
					break
				}
				if visited[id] {
					break
				}
				visited[id] = true
				nn, ok := s.nodeIndex[id]
				if !ok || nn.Trait == nil || len(nn.Trait.Selection.Replaces) == 0 {
					break
				}
				id = nn.Trait.Selection.Replaces[0]
			}
		}
	}
	return warnings
}

// --- accessors ---

func (s *Store) Node(id string) (*node.Node, bool) {
	n, ok := s.nodeIndex[id]
	return n, ok
}

func (s *Store) NodesByKind(kind string) []*node.Node { return s.nodesByKind[kind] }

func (s *Store) RelationshipsBySource(id string) []*node.Relationship { return s.relBySource[id] }
func (s *Store) RelationshipsByTarget(id string) []*node.Relationship { return s.relByTarget[id] }
func (s *Store) RelationshipsByType(t node.RelationshipType) []*node.Relationship {
	return s.relByType[t]
}

func (s *Store) ThresholdModifiers() []*node.Node { return s.thresholdModifiers }
func (s *Store) ThresholdTraitsForVariable(varID string) []*node.Node {
	return s.thresholdTraitsByVar[varID]
}

// ExclusiveGroup returns the set of modifier ids mutually exclusive with
// modID (not including modID itself).
func (s *Store) ExclusiveGroup(modID string) map[string]bool { return s.exclusiveGroups[modID] }

func (s *Store) Formula(source string) (*formula.Compiled, bool) {
	c, ok := s.formulaCache[source]
	return c, ok
}

func (s *Store) Preset(id string) (Preset, bool) {
	p, ok := s.presets[id]
	return p, ok
}

// PresetIDs returns every configured preset id, sorted for deterministic
// glob-matching order.
func (s *Store) PresetIDs() []string {
	out := make([]string, 0, len(s.presets))
	for id := range s.presets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Pool(id string) (PoolSpec, bool) {
	p, ok := s.pools[id]
	return p, ok
}

func (s *Store) Pools() []PoolSpec {
	out := make([]PoolSpec, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p)
	}
	return out
}
