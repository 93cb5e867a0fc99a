package pipeline

import "fmt"

// ValidateAdjacency checks a declared stage graph against the set of stage
// names, in declaration order. It verifies that every edge endpoint is a
// known stage, that edges are not duplicated, that the graph is acyclic,
// that exactly one stage has no predecessors, and that every stage is
// reachable from that entry stage. It returns the entry stage name.
//
// Exported so hosts can validate a definition's shape without registering
// stage factories first.
func ValidateAdjacency(order []string, adjacency map[string][]string) (string, error) {
	known := make(map[string]bool, len(order))
	for _, name := range order {
		known[name] = true
	}

	inDegree := make(map[string]int, len(order))
	for from, succs := range adjacency {
		if !known[from] {
			return "", &GraphError{Stage: from, Reason: "edge source is not a registered stage"}
		}
		seen := make(map[string]bool, len(succs))
		for _, to := range succs {
			edge := from + "->" + to
			if !known[to] {
				return "", &GraphError{Edge: edge, Reason: "edge target is not a registered stage"}
			}
			if seen[to] {
				return "", &GraphError{Edge: edge, Reason: "duplicate edge"}
			}
			if to == from {
				return "", &GraphError{Edge: edge, Reason: "self-loop"}
			}
			seen[to] = true
			inDegree[to]++
		}
	}

	var entry string
	for _, name := range order {
		if inDegree[name] != 0 {
			continue
		}
		if entry != "" {
			return "", &GraphError{
				Stage:  name,
				Reason: fmt.Sprintf("multiple entry stages (%q has no predecessors either)", entry),
			}
		}
		entry = name
	}
	if entry == "" {
		return "", &GraphError{Reason: "no entry stage: every stage has a predecessor (cycle)"}
	}

	// Kahn's algorithm over a scratch copy of the in-degrees.
	remaining := make(map[string]int, len(order))
	for _, name := range order {
		remaining[name] = inDegree[name]
	}
	queue := []string{entry}
	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range adjacency[node] {
			remaining[succ]--
			if remaining[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if visited != len(order) {
		// Every unvisited stage still has pending in-degree: it sits on a
		// cycle or is only reachable through one. Report the first in
		// declaration order for a stable message.
		for _, name := range order {
			if remaining[name] > 0 {
				return "", &GraphError{Stage: name, Reason: "stage is on a cycle or unreachable from the entry stage"}
			}
		}
	}

	return entry, nil
}

// linearAdjacency builds the default graph used when no explicit edges were
// declared: a strict chain following stage declaration order.
func linearAdjacency(order []string) map[string][]string {
	adjacency := make(map[string][]string, len(order))
	for i := 0; i+1 < len(order); i++ {
		adjacency[order[i]] = []string{order[i+1]}
	}
	return adjacency
}

// copyAdjacency deep-copies an adjacency mapping so later caller mutations
// cannot corrupt the validated graph.
func copyAdjacency(adjacency map[string][]string) map[string][]string {
	out := make(map[string][]string, len(adjacency))
	for from, succs := range adjacency {
		out[from] = append([]string(nil), succs...)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
