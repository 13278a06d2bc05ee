// Package config loads service settings from defaults, an optional
// config.yaml, and ORTHO_-prefixed environment variables, then validates them.
// The older WEBODM_HOST and WEBODM_TOKEN variables are still honoured.
package config
