// Package vm implements the Sprig runtime.
//
// This package contains:
//   - Tagged value representation over a single 64-bit payload
//   - A capacity-bounded heap of header+slot objects with exact
//     reference-offset descriptors
//   - A stop-the-world mark-sweep collector
//   - The runtime API used by generated code (allocation, field and
//     element access, strings, natives)
//   - A bytecode interpreter for programs produced by the compiler
package vm
