// Package topology partitions a pool of ranks into worker groups and an
// ensemble-reduction group spanning the group roots.
//
// Ranks are goroutines started by Launch. They talk through Comm, an
// in-process communicator with blocking collectives (Barrier, Gather,
// AllGather, Bcast) and sub-communicator construction (Split, Include).
// As with any collective API, every member of a communicator must call the
// same collectives in the same order.
package topology
