// Package config holds the build-time constants that parameterize the HAL.
// There is no runtime reconfiguration: a Config is built once by Default (or
// a test override) and threaded down to every package that needs it.
package config

// Config mirrors the opaque build-time constants of the original HAL:
// number of cores per cluster, number of clusters, interrupt count, the
// master core id, cache line size, and page size.
type Config struct {
	CoresPerCluster int
	ClustersNum     int
	MasterCoreID    int
	InterruptsNum   int
	ExceptionsNum   int
	CacheLineSize   int
	PageSize        int

	// CoreStartNtrials bounds cluster.CoreStart's retry loop against a core stuck
	// Resetting.
	CoreStartNtrials int

	// SpuriousThreshold is the diagnostic knob past which the interrupt
	// facade escalates to verbose logging. Not load-bearing for
	// correctness, only for diagnostics.
	SpuriousThreshold int
}

// Default returns the configuration used by the reference cluster: one
// cluster of 4 cores, 64 interrupt lines, core 0 as master.
func Default() Config {
	return Config{
		CoresPerCluster:   4,
		ClustersNum:       1,
		MasterCoreID:      0,
		InterruptsNum:     64,
		ExceptionsNum:     16,
		CacheLineSize:     64,
		PageSize:          4096,
		CoreStartNtrials:  10,
		SpuriousThreshold: 100,
	}
}

// CoresNum is the total number of cores addressable in this process,
// mirroring the original's flat CORES_NUM across a single cluster.
func (c Config) CoresNum() int {
	return c.CoresPerCluster
}
