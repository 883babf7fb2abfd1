// Package auth manages the OAuth2 credential of the logged in user.
//
// The Gateway is the only component that reads or writes the credential. It
// supports the authorization-code and refresh-token grants:
//
//	gw := auth.NewGateway(cfg, credStore, transport, m, logger)
//
//	fmt.Println("open", must(gw.AuthorizationURL(state)))
//	if _, err := gw.Login(ctx, code); err != nil {
//	    return err
//	}
//
// The request executor asks the Gateway for an Authorization header before
// every authenticated call. An expired access token is refreshed on demand,
// and concurrent callers share a single refresh request. A failed refresh
// leaves the stored credential untouched and does not log the user out; the
// caller decides whether to call Logout.
//
// Expiry is computed once, when a token response is received, and stored
// with the credential.
package auth
