// Package engine defines the boundary to the external simulation engine
// that evaluates forces, integrates and minimizes. The sampler only talks
// to it through commands, per-atom gather/scatter and global observables.
//
// Implementations live in subpackages: memory is an in-process engine for
// tests and dry runs, remote bridges to an engine server over socket.io.
package engine
