// Package utils houses the configuration and logging plumbing shared by the
// histmove entrypoint and the relocation command.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// environment overrides through Viper, LoggerFactory builds zap loggers for
// the configured level and encoding, and CommandContextAccessor threads
// resolved settings through command contexts.
package utils
