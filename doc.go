// Package auth gates password logins through an account lockout policy.
//
// Login flow:
//   - Guard.AttemptLogin serializes attempts per email, rejects unknown and
//     INACTIVE accounts, verifies the password through a CredentialVerifier
//     and appends exactly one LoginAttempt per call.
//   - Consecutive failures are counted from the attempt log, newest first,
//     up to the last success. Reaching the limit (3 by default) moves the
//     account to BLOCKED. A correct password lifts the block.
//   - Provider outages do not count unless WithCountVerifierOutages is set.
//
// Account lifecycle:
//   - AccountStateMachine owns the ACTIVE, BLOCKED and INACTIVE graph, stamps
//     strictly increasing transition times and records history.
//   - Admin exposes the manual transitions and shares the Guard's Locker so
//     they never interleave with a login on the same email.
//
// Activity sinks:
//   - ActivitySink receives login, lockout and lifecycle events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package auth
