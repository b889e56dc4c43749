// Package config defines the gateway configuration schema and loading.
//
// Configuration comes from a single YAML file (backend registry, routing
// table, lifecycle/voice/feed settings) with SYNAPSE_* environment variable
// overrides. Loading applies defaults, then validates; the resulting Config
// is treated as immutable for the life of the process.
package config
