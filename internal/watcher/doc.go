// Package watcher watches a file blob root for newly written objects.
//
// fsnotify is used where available, with a polling fallback for mounts that
// do not deliver events. Rapid writes to the same object are debounced so an
// object is reported once it has been quiet for the debounce window.
//
// Usage:
//
//	w, err := watcher.New(root, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx) }()
//
//	for batch := range w.Events() {
//	    for _, n := range watcher.Notifications(store, batch) {
//	        // ingest n
//	    }
//	}
package watcher
