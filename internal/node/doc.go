// Package node provides the value types describing cluster members during a
// group 0 recovery.
//
// A Member is built fresh from every administrative status query. Its
// Liveness is derived from the two-letter status code reported by the admin
// tool:
//
//	UN -> AliveNormal    DN -> DeadNormal
//	UJ/UL/UM -> AliveLimited    DJ/DL/DM -> DeadLimited
//
// Codes outside that set are rejected by ParseLiveness so callers can skip
// the line with a diagnostic.
//
// # Member Lifecycle
//
// During a recovery run each live member moves through:
//
//	Running -> Stopping -> Stopped -> Reconfiguring -> Starting -> Ready
//	                                                          \-> Failed
//
// Ready and Failed are terminal.
package node
