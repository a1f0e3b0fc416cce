// Package vm runs compiled frospy programs.
//
// This package contains:
//   - the runtime value model (integers, atoms, closures, natives)
//   - persistent environments with structural sharing
//   - the trampoline driver (Machine), a flat dispatch loop over blocks
//   - the reference evaluator used as a correctness oracle
//   - the AOT compiler that emits a standalone Go program
package vm
