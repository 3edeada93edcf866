// Package config provides configuration loading for evbus.
//
// Configuration is resolved with viper in four steps, each overriding the
// previous:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension (.toml, .yaml, .yml)
//  3. Environment variables prefixed with EVBUS_
//  4. Command-line flags bound with Loader.BindFlag
//
// Example TOML file:
//
//	[log]
//	level = "debug"
//	format = "json"
//
//	[bus]
//	telemetry = true
//	slow_handler = "250ms"
//
//	[scripts]
//	paths = ["scripts/audit.lua"]
//	timeout = "1s"
//
// Supported environment variables:
//
//	EVBUS_LOG_LEVEL         log.level
//	EVBUS_LOG_FORMAT        log.format
//	EVBUS_BUS_TELEMETRY     bus.telemetry
//	EVBUS_BUS_SLOW_HANDLER  bus.slow_handler
//	EVBUS_SCRIPTS           scripts.paths (comma separated; EVBUS_SCRIPTS_PATHS also works)
//	EVBUS_SCRIPTS_TIMEOUT   scripts.timeout
package config
