package utils

import "context"

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
)

type commandContextKey string

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath attaches the resolved configuration file path to the context.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	return accessor.withValue(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// ConfigurationFilePath extracts the configuration file path from the context.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return accessor.stringValue(executionContext, configurationFilePathContextKeyConstant)
}

func (accessor CommandContextAccessor) withValue(parentContext context.Context, key commandContextKey, value string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, key, value)
}

func (accessor CommandContextAccessor) stringValue(executionContext context.Context, key commandContextKey) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, available := executionContext.Value(key).(string)
	return value, available
}
