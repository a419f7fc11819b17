// Package preflight runs the environment checks behind `docrag doctor`:
// the document tree is readable, the data directory is writable with free
// space, the embedder answers, and the published index loads.
//
//	checker := preflight.New(cfg, preflight.WithEmbedder(e))
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to ingest
//	}
package preflight
