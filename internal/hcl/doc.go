// Package hcl provides the HCL implementation of the config.Loader and
// config.Encoder interfaces. It is responsible for parsing run files,
// translating their blocks into a config.Builder and writing the snapshot
// that lets a run be reproduced.
//
// A run file has four blocks, all optional:
//
//	axes {
//	  ReactionCoordinate = "0 1 9"
//	  Temperature        = [0, 100, 200]
//	  Friction           = { values = [0.01, 0.05, 0.1] }
//	}
//	parameters { CoresPerWorker = 2 }
//	scripts    { PreRun = "run 0" }
//	pathway {
//	  directory = "./systems/Fe"
//	  potential = "./systems/Fe.eam.fs"
//	  files     = ["image_1.dat", "image_2.dat"]
//	}
package hcl
