package pipeline

import "strings"

// RenderText returns a one-line plain-text navigation header: the path taken
// so far, the current stage in brackets, and the declared successors of the
// current stage. Branch points render as an alternative group.
//
//	intake -> triage -> [review] -> (approve | reject)
//
// Before Start it renders the registered chain from the entry stage instead.
func (p *Pipeline) RenderText() string {
	var b strings.Builder

	if !p.started {
		p.renderStatic(&b)
		return b.String()
	}

	for _, name := range p.history {
		b.WriteString(name)
		b.WriteString(" -> ")
	}
	b.WriteString("[")
	b.WriteString(p.current)
	b.WriteString("]")
	renderSuccessors(&b, p.effectiveAdjacency()[p.current])
	return b.String()
}

// renderStatic walks the graph from the entry while the chain is unambiguous.
func (p *Pipeline) renderStatic(b *strings.Builder) {
	adjacency := p.effectiveAdjacency()
	node := p.Entry()
	if node == "" {
		b.WriteString("(empty pipeline)")
		return
	}
	for {
		b.WriteString(node)
		successors := adjacency[node]
		if len(successors) == 0 {
			return
		}
		if len(successors) > 1 {
			renderSuccessors(b, successors)
			return
		}
		b.WriteString(" -> ")
		node = successors[0]
	}
}

func renderSuccessors(b *strings.Builder, successors []string) {
	switch len(successors) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(successors[0])
	default:
		b.WriteString(" -> (")
		b.WriteString(strings.Join(successors, " | "))
		b.WriteString(")")
	}
}
