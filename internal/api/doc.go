// Package api executes SoundCloud API calls and pages through list
// resources.
//
// A call site builds a Descriptor once and hands it to Execute together with
// an Executor:
//
//	var meDescriptor = api.Get[dto.JSONUser]("/me", nil)
//
//	me, err := api.Execute(ctx, exec, meDescriptor)
//	switch {
//	case errors.Is(err, common.ErrAuthRequired):
//	    // log in again
//	case errors.Is(err, common.ErrNetwork):
//	    // HTTP error or transport failure
//	}
//
// Authenticated descriptors get their Authorization header from the
// executor's HeaderProvider, which is the only place a token refresh can be
// triggered. Token endpoint calls are marked IsRefreshCall and never ask
// for a header.
//
// # Pagination
//
// List endpoints return a collection plus an opaque next_href cursor.
// FetchPage returns the first Page; FetchNextPage follows the cursor:
//
//	page, err := api.FetchPage(ctx, exec, likesDescriptor)
//	for page.HasNextPage() {
//	    next, err := api.FetchNextPage(ctx, exec, page)
//	    if err != nil {
//	        break
//	    }
//	    page = page.Merge(next)
//	}
//
// Merging is always the caller's decision.
package api
