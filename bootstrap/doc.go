// Package bootstrap implements the wallet ecosystem bootstrap: the state machine that brings the wallet from nothing
// to a usable address.
//
//	NotStarted --Initialize--> InProgress
//	InProgress --Constrained--> DegradedReady (sentinel address, nothing else is touched)
//	InProgress --Full, no identity--> generate, register, activate --> Ready
//	InProgress --Full, identity--> sync, activate --> Ready
//	InProgress --error or panic--> Failed(reason)
//
// Attempts are single-flight and never roll back: a generated identity survives any later failure and the next
// attempt carries on from it. A failure to start the auxiliary services leaves the controller Ready with the
// activation error recorded, and the next Initialize tries again.
package bootstrap
