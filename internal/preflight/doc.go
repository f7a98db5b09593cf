// Package preflight provides readiness checks for filesystem paths and
// endpoints that Capstan depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every result, so a broken
//     staging or library directory is visible before any download is admitted.
//   - The CLI "capstan health" command uses the FromConfig variants to show
//     readiness alongside snapshot and history health.
//
// Network checks are gated by their config toggles; the rescan probe only
// dials, it never issues a scan request.
package preflight
