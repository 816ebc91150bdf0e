// Package config loads the chat client configuration from YAML, with
// ${VAR} environment expansion and duration-string parsing.
package config
