// Package utils exposes the ambient helpers shared by the cratemerge commands.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// CRATEMERGE_* environment variables through Viper. LoggerFactory builds zap
// loggers in structured or console form. FlushingWriter keeps console notices
// visible as they are emitted.
package utils
