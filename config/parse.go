package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sarchlab/mgsim/coma/localdir"
)

// Parse turns a flat object-path-keyed map into typed per-component
// configs. A key is "<component path>.<key name>"; the key name picks
// the section. Unknown key names are errors (spec.md §6).
func Parse(flat map[string]string) (*Config, error) {
	cfg := &Config{
		Cores:       make(map[string]CoreConfig),
		Caches:      make(map[string]CacheConfig),
		Directories: make(map[string]DirectoryConfig),
		FPUs:        make(map[string]FPUConfig),
	}

	// Directory-defining keys go first so a directory's cache-shaped
	// keys land in its section regardless of map order.
	for path, value := range flat {
		component, key, err := splitPath(path)
		if err != nil {
			return nil, err
		}
		if key != "NumTokens" && key != "InjectionPolicy" {
			continue
		}
		d, ok := cfg.Directories[component]
		if !ok {
			d = DefaultDirectoryConfig()
		}
		if err := applyDirectoryKey(&d, key, value); err != nil {
			return nil, errors.Wrapf(err, "config key %q", path)
		}
		cfg.Directories[component] = d
	}

	for path, value := range flat {
		component, key, _ := splitPath(path)

		var err error
		switch {
		case key == "NumTokens" || key == "InjectionPolicy":
			continue
		case isCoreKey(key):
			c, ok := cfg.Cores[component]
			if !ok {
				c = DefaultCoreConfig()
			}
			err = applyCoreKey(&c, key, value)
			cfg.Cores[component] = c
		case isCacheKey(key):
			if d, ok := cfg.Directories[component]; ok {
				err = applyCacheKey(&d.CacheConfig, key, value)
				cfg.Directories[component] = d
				break
			}
			c, ok := cfg.Caches[component]
			if !ok {
				c = DefaultCacheConfig()
			}
			err = applyCacheKey(&c, key, value)
			cfg.Caches[component] = c
		case strings.HasPrefix(key, "Latency"):
			f, ok := cfg.FPUs[component]
			if !ok {
				f = FPUConfig{Latencies: make(map[string]int)}
			}
			f.Latencies[strings.TrimPrefix(key, "Latency")], err = atoi(value)
			cfg.FPUs[component] = f
		default:
			return nil, errors.Errorf("unknown config key %q", path)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "config key %q", path)
		}
	}

	return cfg, nil
}

// Core returns the config for a core path, defaulted if unnamed.
func (c *Config) Core(path string) CoreConfig {
	if cc, ok := c.Cores[path]; ok {
		return cc
	}
	return DefaultCoreConfig()
}

// Cache returns the config for a cache path, defaulted if unnamed.
func (c *Config) Cache(path string) CacheConfig {
	if cc, ok := c.Caches[path]; ok {
		return cc
	}
	return DefaultCacheConfig()
}

// Directory returns the config for a directory path, defaulted if
// unnamed.
func (c *Config) Directory(path string) DirectoryConfig {
	if dc, ok := c.Directories[path]; ok {
		return dc
	}
	return DefaultDirectoryConfig()
}

func splitPath(path string) (component, key string, err error) {
	dot := strings.LastIndex(path, ".")
	if dot < 0 {
		return "", "", errors.Errorf("config key %q has no component path", path)
	}
	return path[:dot], path[dot+1:], nil
}

func isCoreKey(key string) bool {
	switch key {
	case "NumIntRegisters", "NumFltRegisters", "NumFamilies", "NumThreads",
		"ControlBlockSize", "InitialThreadAllocateQueueSize", "CreateQueueSize",
		"ThreadCleanupQueueSize", "FamilyAllocationSuspendQueueSize",
		"FamilyAllocationNoSuspendQueueSize", "FamilyAllocationExclusiveQueueSize":
		return true
	}
	return false
}

func applyCoreKey(c *CoreConfig, key, value string) error {
	n, err := atoi(value)
	if err != nil {
		return err
	}
	switch key {
	case "NumIntRegisters":
		c.NumIntRegisters = n
	case "NumFltRegisters":
		c.NumFltRegisters = n
	case "NumFamilies":
		c.NumFamilies = n
	case "NumThreads":
		c.NumThreads = n
	case "ControlBlockSize":
		c.ControlBlockSize = n
	case "InitialThreadAllocateQueueSize":
		c.InitialThreadAllocateQueueSize = n
	case "CreateQueueSize":
		c.CreateQueueSize = n
	case "ThreadCleanupQueueSize":
		c.ThreadCleanupQueueSize = n
	case "FamilyAllocationSuspendQueueSize":
		c.FamilyAllocationSuspendQueueSize = n
	case "FamilyAllocationNoSuspendQueueSize":
		c.FamilyAllocationNoSuspendQueueSize = n
	case "FamilyAllocationExclusiveQueueSize":
		c.FamilyAllocationExclusiveQueueSize = n
	}
	return nil
}

func isCacheKey(key string) bool {
	switch key {
	case "CacheLineSize", "Associativity", "NumSets", "BankSelector",
		"OutgoingBufferSize", "IncomingBufferSize":
		return true
	}
	return false
}

func applyCacheKey(c *CacheConfig, key, value string) error {
	if key == "BankSelector" {
		c.BankSelector = value
		return nil
	}
	n, err := atoi(value)
	if err != nil {
		return err
	}
	switch key {
	case "CacheLineSize":
		c.CacheLineSize = n
	case "Associativity":
		c.Associativity = n
	case "NumSets":
		c.NumSets = n
	case "OutgoingBufferSize":
		c.OutgoingBufferSize = n
	case "IncomingBufferSize":
		c.IncomingBufferSize = n
	}
	return nil
}

func applyDirectoryKey(d *DirectoryConfig, key, value string) error {
	switch key {
	case "NumTokens":
		n, err := atoi(value)
		if err != nil {
			return err
		}
		d.NumTokens = n
	case "InjectionPolicy":
		switch value {
		case "none":
			d.InjectionPolicy = localdir.InjectNone
		case "empty-slot-one-eject":
			d.InjectionPolicy = localdir.InjectEmptySlotOneEject
		default:
			return errors.Errorf("unknown injection policy %q", value)
		}
	}
	return nil
}

func atoi(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrap(err, "expected an integer")
	}
	return n, nil
}
