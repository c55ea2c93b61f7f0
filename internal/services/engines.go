package services

// Engines bundles the constructed service surface. The transport layer
// takes this as its single dependency.
type Engines struct {
	Status     StatusOracle
	Generation GenerationService
	Analysis   AnalysisService
	Retrieval  RetrievalService
}

// Ready reports whether every engine is wired.
func (e Engines) Ready() bool {
	return e.Status != nil && e.Generation != nil && e.Analysis != nil && e.Retrieval != nil
}
