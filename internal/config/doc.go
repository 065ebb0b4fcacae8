// Package config provides loading and environment overlay for the insight
// runtime configuration. It exposes a Default() baseline, JSON/YAML file
// loading, and a KLD_* env overlay applied on top.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/kaleidoscope/insightd.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
