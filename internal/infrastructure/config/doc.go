// Package config provides configuration loading and validation for SoC Hub.
//
// Configuration is loaded from a YAML file, merged over hardcoded defaults,
// and finally overridden by SOCHUB_* environment variables. All numeric
// fields are validated against hardcoded ranges at load time; out-of-range
// values fail startup rather than being clamped.
//
// The topics section defines the seed vocabulary and the raw topic/filter
// templates; resolution of %(seed)s placeholders is the topics package's
// responsibility, not this package's.
package config
