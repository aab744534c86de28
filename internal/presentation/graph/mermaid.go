package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/tendril/pkg/chain"
)

// GraphOverlay marks the chain positions a traversal went through.
type GraphOverlay struct {
	Visited []chain.Cursor
	Current chain.Cursor
}

type exit struct {
	from  string
	label string
}

// GenerateMermaid renders a chain as a Mermaid flowchart.
// Shapes:
// - Start and answer: ((Circle))
// - Agent: [Rectangle], or [/Parallelogram/] when guarded by `when`
// - Branch: {Diamond}, with one labeled edge per arm and a "no match" edge
func GenerateMermaid(c *chain.Chain, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("    start((\"input\"))\n")

	exits := renderNodes(&sb, c.Nodes, chain.Cursor{}, []exit{{from: "start"}})

	sb.WriteString("    answer((\"answer\"))\n")
	writeEdges(&sb, exits, "answer")

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, cur := range overlay.Visited {
			id := nodeID(cur)
			if !seen[id] && id != "" {
				seen[id] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", id))
			}
		}
		if len(overlay.Current) > 0 {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", nodeID(overlay.Current)))
		}
	}

	return sb.String()
}

func renderNodes(sb *strings.Builder, nodes []chain.Node, prefix chain.Cursor, prev []exit) []exit {
	for i, n := range nodes {
		cur := prefix.Push(i)
		id := nodeID(cur)

		switch n := n.(type) {
		case *chain.AgentNode:
			label := escape(n.Agent.String())
			if n.When != nil {
				sb.WriteString(fmt.Sprintf("    %s[/\"%s\"/]\n", id, label))
			} else {
				sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", id, label))
			}
			writeEdges(sb, prev, id)

			next := []exit{{from: id}}
			if n.When != nil {
				// Skipped nodes hand their input straight to the next one.
				for _, p := range prev {
					next = append(next, exit{from: p.from, label: joinLabel(p.label, "unless "+n.When.String())})
				}
			}
			prev = next

		case *chain.BranchNode:
			sb.WriteString(fmt.Sprintf("    %s{\"branch\"}\n", id))
			writeEdges(sb, prev, id)

			var next []exit
			for j, arm := range n.Arms {
				entry := []exit{{from: id, label: arm.Cond.String()}}
				if len(arm.Nodes) == 0 {
					next = append(next, entry...)
					continue
				}
				next = append(next, renderNodes(sb, arm.Nodes, cur.Push(j), entry)...)
			}
			prev = append(next, exit{from: id, label: "no match"})
		}
	}
	return prev
}

func writeEdges(sb *strings.Builder, from []exit, to string) {
	for _, e := range from {
		if e.label == "" {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", e.from, to))
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", e.from, escape(e.label), to))
	}
}

func joinLabel(a, b string) string {
	if a == "" {
		return b
	}
	return a + ", " + b
}

func nodeID(cur chain.Cursor) string {
	if len(cur) == 0 {
		return ""
	}
	parts := make([]string, len(cur))
	for i, idx := range cur {
		parts[i] = strconv.Itoa(idx)
	}
	return "n" + strings.Join(parts, "_")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
