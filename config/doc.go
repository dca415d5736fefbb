// Package config loads the service configuration.
//
// A Loader starts from Default, deep-merges each JSON or YAML layer over it
// key by key, then applies DMOD_* environment overrides and validates the
// result:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/dmod/base.yaml")
//	loader.AddLayer("site.json")
//	cfg, err := loader.Load()
//
// Layers override only the keys they set:
//
//	base.yaml:   {nats: {enabled: true, url: "nats://bus:4222"}}
//	site.json:   {"nats": {"url": "nats://site-bus:4222"}}
//	result:      nats.enabled=true, nats.url="nats://site-bus:4222"
//
// Durations may be written as strings ("30s", "2d"). Files are limited in
// size and JSON nesting depth, and relative paths may not leave the working
// directory.
package config
