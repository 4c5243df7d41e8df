package core

import (
	"strconv"
	"strings"
)

// NodeID is the stable arena index of a concept node.
type NodeID uint64

// NodeState is the lifecycle state of a concept node.
type NodeState int

const (
	// NodePending means the node's aliases have been seen but not confirmed.
	NodePending NodeState = iota + 1
	// NodeConfirmed means enough extraction events (or one confident event) back the node.
	NodeConfirmed
	// NodeMerged means the node was absorbed into another node. MergedInto forwards to it.
	NodeMerged
)

func (s NodeState) String() string {
	switch s {
	case NodePending:
		return "pending"
	case NodeConfirmed:
		return "confirmed"
	case NodeMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// RelationType names the type of a concept edge, for example "extends".
type RelationType string

// Common relation types.
const (
	RelationCites       RelationType = "cites"
	RelationExtends     RelationType = "extends"
	RelationContradicts RelationType = "contradicts"
	RelationUses        RelationType = "uses"
	RelationPartOf      RelationType = "part_of"
	RelationRelatedTo   RelationType = "related_to"
)

// NormalizeRelationType lowercases t and joins words with underscores.
func NormalizeRelationType(t string) RelationType {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.Join(strings.FieldsFunc(t, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
	return RelationType(t)
}

// SourceRef points at the chunk (or, when ChunkID is zero, the document) an
// extraction event came from.
type SourceRef struct {
	DocumentID DocumentID
	ChunkID    ID
}

func (s SourceRef) String() string {
	return string(s.DocumentID) + "#" + strconv.FormatUint(uint64(s.ChunkID), 10)
}

// Relation is one extracted (subject, type, object, confidence) tuple.
type Relation struct {
	Subject    string
	Type       RelationType
	Object     string
	Confidence float64
	ChunkID    ID // Optional source chunk
}

// ConceptNode is a canonical concept with its aliases and provenance.
type ConceptNode struct {
	ID         NodeID
	Label      string   // Display label, the first alias seen
	Key        string   // Normalized label
	Aliases    []string // Normalized alias keys, sorted
	Provenance []SourceRef
	Confidence float64 // Highest confidence of any event naming the node
	Events     int     // Distinct extraction events naming the node
	State      NodeState
	MergedInto NodeID `json:",omitempty"`
}

// EdgeKey identifies an edge. Edges form a set keyed by (source, type, target).
type EdgeKey struct {
	Source NodeID
	Type   RelationType
	Target NodeID
}

func (k EdgeKey) String() string {
	return strconv.FormatUint(uint64(k.Source), 10) + "-" + string(k.Type) + "->" + strconv.FormatUint(uint64(k.Target), 10)
}

// ConceptEdge is a directed typed relation between two concept nodes.
type ConceptEdge struct {
	Key        EdgeKey
	Weight     float64 // Sum of the confidences of the distinct events backing the edge
	Provenance []SourceRef
	Events     int
}

// Affected lists the nodes and edges touched by one graph mutation.
type Affected struct {
	Nodes []NodeID
	Edges []EdgeKey
}

// Subgraph is a snapshot of part of the concept graph.
type Subgraph struct {
	Nodes []ConceptNode
	Edges []ConceptEdge
}
