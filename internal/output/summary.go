package output

import (
	"fmt"
	"io"
	"sort"

	"github.com/failwarn/corstester/internal/scanner"
)

type treeNode struct {
	name     string
	children []*treeNode
}

func (n *treeNode) findOrCreate(name string) *treeNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	child := &treeNode{name: name}
	n.children = append(n.children, child)
	return child
}

// PrintFindings renders the findings of results as a tree grouped by target
// and finding. Within a target, results with the worst findings come first:
//
//	https://api.example
//	└── [critical] reflected-origin
//	    ├── GET https://corstester.invalid
//	    └── PUT https://corstester.invalid
//
// Nothing is printed when no result has findings.
func PrintFindings(w io.Writer, results []*scanner.ScanResult) {
	sorted := make([]*scanner.ScanResult, 0, len(results))
	for _, r := range results {
		if len(r.Verdict.Findings) > 0 {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].URL != sorted[j].URL {
			return sorted[i].URL < sorted[j].URL
		}
		return sorted[i].Verdict.MaxSeverity() > sorted[j].Verdict.MaxSeverity()
	})

	root := &treeNode{}
	for _, r := range sorted {
		target := root.findOrCreate(r.URL)
		for _, f := range r.Verdict.Findings {
			node := target.findOrCreate(fmt.Sprintf("[%s] %s", f.Severity, f.ID))
			node.findOrCreate(r.Method + " " + r.Origin)
		}
	}

	fmt.Fprintf(w, "\n  Findings:\n")
	for _, target := range root.children {
		fmt.Fprintf(w, "  %s\n", target.name)
		printChildren(w, target, "  ")
	}
}

func printChildren(w io.Writer, node *treeNode, prefix string) {
	for i, child := range node.children {
		isLast := i == len(node.children)-1
		connector := "├── "
		if isLast {
			connector = "└── "
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, child.name)
		nextPrefix := prefix + "│   "
		if isLast {
			nextPrefix = prefix + "    "
		}
		printChildren(w, child, nextPrefix)
	}
}
