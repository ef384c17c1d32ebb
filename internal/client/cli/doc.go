// Package cli provides the interactive matchbridge command-line client.
//
// It wires configuration, the session store, the HTTP and chat transports,
// the feed, rating and auth services, and an interactive REPL. A background
// watcher re-checks the session periodically and federates again with the
// chat provider when its token lapses.
//
// Key features:
//   - Login by SMS code
//   - Fetch and list recommendations
//   - Show a subject's photos and answers
//   - Like, superlike (optionally with a comment) and skip
//   - Remaining like allowance and own profile summary
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartValidityWatcher, and runREPL for details.
package cli
