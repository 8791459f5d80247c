package search

import "github.com/poiesic/gleanit/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to trace how a result set was assembled.
type SearchMonitor interface {
	Start(query string)
	AfterSemanticSearch(matches []*core.DocumentMatch)
	VerbatimHit(doc *core.VectorDocument)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                              {}
func (n *noopMonitor) AfterSemanticSearch(_ []*core.DocumentMatch) {}
func (n *noopMonitor) VerbatimHit(_ *core.VectorDocument)          {}
func (n *noopMonitor) Finish(_ []*Result)                          {}
