// Package rotate provides the business logic for rotating the access keys of a
// single principal. It will ask the provider for the current keys and the time
// each was last used, ask the store for the time the previous key was
// deactivated, apply the rotation policy to decide on exactly one action, ask
// the provider to perform that action, and then store the current credential
// values in the store.
//
// The decision itself is made by Decide(), which performs no I/O. Everything
// Decide() needs arrives as a snapshot and everything it wants done leaves as
// an Action value. The Manager does the talking.
//
// A principal moves through the following stages, one per run at most:
//
//	no keys -> one active -> two active -> one active + one inactive -> one active
//
// Any run may also do nothing, which is the answer whenever the evidence is
// incomplete or ambiguous.
package rotate
