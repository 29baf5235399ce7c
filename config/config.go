// Package config parses the flat key-value configuration surface of
// the simulator (spec.md §6): sections are chosen by object-path
// prefix, recognized keys become typed per-component configs, and
// unknown keys are errors.
package config

import (
	"github.com/sarchlab/mgsim/coma/localdir"
)

// CoreConfig is the per-core key set.
type CoreConfig struct {
	NumIntRegisters  int
	NumFltRegisters  int
	NumFamilies      int
	NumThreads       int
	ControlBlockSize int

	InitialThreadAllocateQueueSize int
	CreateQueueSize                int
	ThreadCleanupQueueSize         int

	FamilyAllocationSuspendQueueSize   int
	FamilyAllocationNoSuspendQueueSize int
	FamilyAllocationExclusiveQueueSize int
}

// DefaultCoreConfig mirrors the hardware defaults.
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		NumIntRegisters:                    1024,
		NumFltRegisters:                    512,
		NumFamilies:                        32,
		NumThreads:                         256,
		ControlBlockSize:                   64,
		InitialThreadAllocateQueueSize:     32,
		CreateQueueSize:                    8,
		ThreadCleanupQueueSize:             32,
		FamilyAllocationSuspendQueueSize:   8,
		FamilyAllocationNoSuspendQueueSize: 8,
		FamilyAllocationExclusiveQueueSize: 2,
	}
}

// CacheConfig is the per-cache key set.
type CacheConfig struct {
	CacheLineSize      int
	Associativity      int
	NumSets            int
	BankSelector       string
	OutgoingBufferSize int
	IncomingBufferSize int
}

// DefaultCacheConfig mirrors the hardware defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		CacheLineSize:      64,
		Associativity:      4,
		NumSets:            16,
		BankSelector:       "direct",
		OutgoingBufferSize: 8,
		IncomingBufferSize: 8,
	}
}

// DirectoryConfig is the per-directory key set: the cache surface
// plus the token constant and the injection policy.
type DirectoryConfig struct {
	CacheConfig
	NumTokens       int
	InjectionPolicy localdir.InjectionPolicy
}

// DefaultDirectoryConfig mirrors the hardware defaults.
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		CacheConfig: DefaultCacheConfig(),
		NumTokens:   4,
	}
}

// FPUConfig carries per-operation latencies.
type FPUConfig struct {
	Latencies map[string]int
}

// Config is the parsed configuration: one entry per named component
// path, each an immutable snapshot of the keys it consumed.
type Config struct {
	Cores       map[string]CoreConfig
	Caches      map[string]CacheConfig
	Directories map[string]DirectoryConfig
	FPUs        map[string]FPUConfig
}
