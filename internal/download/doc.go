// Package download manages offline downloads of SoundCloud tracks.
//
// # Manager
//
// The Manager owns one job per track and drives it through
//
//	Pending -> Running -> Completed | Canceled | Failed
//
//  1. Start registers a Pending job with a fresh correlation key
//  2. An authorized streaming request carrying that key is handed to the transport
//  3. The transport reports the task through OnTaskCreated; the job becomes Running
//  4. Progress events update the job
//  5. On completion the payload is tagged and stored with its metadata
//
// # Basic Usage
//
//	manager := download.NewManager(transport, executor, store,
//	    download.WithTagger(tagger),
//	    download.WithLogger(logger),
//	)
//	defer manager.Close()
//
//	if err := manager.Reconcile(ctx); err != nil {
//	    log.Printf("reconcile: %v", err)
//	}
//
//	events, stop := manager.Subscribe()
//	defer stop()
//	go func() {
//	    for ev := range events {
//	        fmt.Println(ev.Message)
//	    }
//	}()
//
//	err := manager.Start(ctx, track)
//
// # Correlation
//
// A streaming task carries no track identifier of its own. Each job gets a
// key "<trackID>:<ULID>" that travels with the request and comes back on the
// task; ParseCorrelationKey recovers the track id. A task whose key no longer
// names a pending job, for example because the job was canceled before the
// task existed, is canceled on arrival.
//
// # Errors
//
// Errors that happen while Start is still waiting are returned by it. Once
// the caller's context ends the download carries on, and a later failure
// only shows up as StateFailed in State and as an Event.
package download
