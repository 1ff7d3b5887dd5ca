// Package oauth implements external-identity login: provider abstraction
// over golang.org/x/oauth2, single-use CSRF state tokens in Redis or memory,
// and the find-or-create account resolution.
//
// A typical callback handler:
//
//	user, res, err := flow.Complete(r.Context(), sess, r.URL.Query().Get("code"), r.URL.Query().Get("state"))
//
// Complete logs the user in through the session accessor, so session
// rotation, login hooks and audit behave exactly as for password logins.
package oauth
