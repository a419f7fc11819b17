// Package watcher reports changes to a documentation tree.
//
// A Watcher follows the tree with fsnotify, drops paths the ingestion
// filters would skip, and debounces bursts of editor and git activity
// into batches:
//
//	w, err := watcher.New(root, watcher.Options{Source: opts})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	for batch := range w.Events() {
//	    // re-ingest
//	}
package watcher
