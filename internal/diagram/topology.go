// Package diagram describes the system architecture as a graph and renders it
// to a raster image through the Mermaid CLI.
package diagram

import (
	"fmt"
	"strings"
)

// Node kinds control the Mermaid shape used for a node.
const (
	KindClient   = "client"
	KindCDN      = "cdn"
	KindStorage  = "storage"
	KindCompute  = "compute"
	KindML       = "ml"
	KindDatabase = "database"
	KindServer   = "server"
)

type Node struct {
	ID    string
	Label string
	Kind  string
}

type Cluster struct {
	Name  string
	Nodes []Node
}

type Edge struct {
	From string
	To   string
}

// Topology is a clustered, directed graph of components.
type Topology struct {
	Title     string
	Direction string // LR, RL, TB or BT
	Clusters  []Cluster
	Edges     []Edge
}

// ArchitectureTopology returns the reference architecture published with
// every page.
func ArchitectureTopology() *Topology {
	return &Topology{
		Title:     "Architecture Diagram",
		Direction: "LR",
		Clusters: []Cluster{
			{Name: "Frontend", Nodes: []Node{
				{ID: "user", Label: "User", Kind: KindClient},
				{ID: "cloudfront", Label: "CloudFront", Kind: KindCDN},
				{ID: "s3_frontend", Label: "S3 (Minified JS/HTML)", Kind: KindStorage},
			}},
			{Name: "Backend", Nodes: []Node{
				{ID: "ecs", Label: "ECS Backend", Kind: KindCompute},
				{ID: "lex", Label: "Lex", Kind: KindML},
				{ID: "polly", Label: "Polly", Kind: KindML},
				{ID: "s3_recording", Label: "S3 (Recording)", Kind: KindStorage},
				{ID: "automarker", Label: "Automarker", Kind: KindServer},
			}},
			{Name: "Database", Nodes: []Node{
				{ID: "aurora", Label: "Aurora PostgreSQL Serverless V2", Kind: KindDatabase},
			}},
			{Name: "Microservices", Nodes: []Node{
				{ID: "microservice", Label: "Microservice", Kind: KindServer},
			}},
		},
		Edges: []Edge{
			{From: "user", To: "cloudfront"},
			{From: "cloudfront", To: "s3_frontend"},
			{From: "cloudfront", To: "ecs"},
			{From: "ecs", To: "lex"},
			{From: "ecs", To: "polly"},
			{From: "polly", To: "s3_recording"},
			{From: "s3_recording", To: "automarker"},
			{From: "automarker", To: "ecs"},
			{From: "ecs", To: "aurora"},
			{From: "microservice", To: "aurora"},
			{From: "microservice", To: "s3_frontend"},
		},
	}
}

// NodeCount returns the number of nodes across all clusters.
func (t *Topology) NodeCount() int {
	n := 0
	for _, c := range t.Clusters {
		n += len(c.Nodes)
	}
	return n
}

// Validate checks that node IDs are unique and every edge endpoint exists.
func (t *Topology) Validate() error {
	switch t.Direction {
	case "LR", "RL", "TB", "BT", "TD":
	default:
		return fmt.Errorf("invalid direction %q", t.Direction)
	}

	seen := make(map[string]bool)
	for _, c := range t.Clusters {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("cluster name cannot be empty")
		}
		for _, n := range c.Nodes {
			if n.ID == "" {
				return fmt.Errorf("node in cluster %q has an empty id", c.Name)
			}
			if seen[n.ID] {
				return fmt.Errorf("duplicate node id %q", n.ID)
			}
			seen[n.ID] = true
		}
	}

	for _, e := range t.Edges {
		if !seen[e.From] {
			return fmt.Errorf("edge %s -> %s: unknown source node", e.From, e.To)
		}
		if !seen[e.To] {
			return fmt.Errorf("edge %s -> %s: unknown target node", e.From, e.To)
		}
	}
	return nil
}

// Mermaid renders the topology as flowchart source. Output depends only on
// the topology, so equal inputs give byte-identical diagrams.
func (t *Topology) Mermaid() string {
	var b strings.Builder

	if t.Title != "" {
		fmt.Fprintf(&b, "---\ntitle: %s\n---\n", t.Title)
	}
	fmt.Fprintf(&b, "flowchart %s\n", t.Direction)

	for _, c := range t.Clusters {
		fmt.Fprintf(&b, "    subgraph %s[\"%s\"]\n", clusterID(c.Name), escapeLabel(c.Name))
		for _, n := range c.Nodes {
			fmt.Fprintf(&b, "        %s\n", nodeShape(n))
		}
		b.WriteString("    end\n")
	}

	for _, e := range t.Edges {
		fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
	}

	return b.String()
}

func clusterID(name string) string {
	var b strings.Builder
	b.WriteString("cluster_")
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func nodeShape(n Node) string {
	label := escapeLabel(n.Label)
	switch n.Kind {
	case KindClient:
		return fmt.Sprintf("%s([\"%s\"])", n.ID, label)
	case KindDatabase:
		return fmt.Sprintf("%s[(\"%s\")]", n.ID, label)
	case KindStorage:
		return fmt.Sprintf("%s[/\"%s\"/]", n.ID, label)
	case KindML:
		return fmt.Sprintf("%s{{\"%s\"}}", n.ID, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", n.ID, label)
	}
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
