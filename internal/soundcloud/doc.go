// Package soundcloud holds the call sites of the SoundCloud API used by the
// client: the current user, likes, playlists, search and like/unlike.
//
// Every call goes through an api.Executor, so authorization, token refresh
// and error classification are handled there:
//
//	svc := soundcloud.NewService(exec, 50, logger)
//
//	likes, err := svc.Likes(ctx)
//	if err != nil {
//	    return err
//	}
//	for likes.HasNextPage() {
//	    next, err := svc.NextTracks(ctx, likes)
//	    if err != nil {
//	        break
//	    }
//	    likes = likes.Merge(next)
//	}
//
// List calls request linked partitioning, so responses carry a next_href
// cursor instead of offsets.
//
// # Wire Format
//
// The dto subpackage holds the JSON shapes with snake_case fields and
// converts them to the model types. Durations arrive in milliseconds and
// are converted to seconds.
package soundcloud
