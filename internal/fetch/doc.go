// Package fetch downloads image content with per-source pacing, bounded
// per-source concurrency and bounded retries.
//
// Failure classes:
//   - ErrNetworkFailure: the attempt budget was spent, or the server answered
//     with a permanent 4xx; the candidate is recorded as failed
//   - ErrOversize: the content is larger than the ceiling; the candidate is
//     rejected as oversize
//   - context errors: returned unchanged so a cancelled run records nothing
package fetch
