package identity

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrorPolicy decides what happens to recoverable identity faults, such as
// two rows that share a natural key. Handle returns the error to propagate,
// or nil to continue.
type ErrorPolicy interface {
	Handle(err error) error
	Name() string
}

type raisePolicy struct{}

func (raisePolicy) Handle(err error) error { return err }
func (raisePolicy) Name() string           { return "raise" }

type ignorePolicy struct{}

func (ignorePolicy) Handle(error) error { return nil }
func (ignorePolicy) Name() string       { return "ignore" }

type logPolicy struct {
	logger *zap.Logger
}

func (p logPolicy) Handle(err error) error {
	p.logger.Warn("identity fault ignored", zap.Error(err))
	return nil
}

func (logPolicy) Name() string { return "log" }

// Raise propagates every fault.
func Raise() ErrorPolicy { return raisePolicy{} }

// Ignore drops every fault.
func Ignore() ErrorPolicy { return ignorePolicy{} }

// Log reports every fault as a warning and continues.
func Log(logger *zap.Logger) ErrorPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logPolicy{logger: logger}
}

// ParseErrorPolicy resolves a policy by name: raise, log or ignore. An empty
// name means raise.
func ParseErrorPolicy(name string, logger *zap.Logger) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "raise":
		return Raise(), nil
	case "log":
		return Log(logger), nil
	case "ignore":
		return Ignore(), nil
	default:
		return nil, fmt.Errorf("identity: unsupported error policy: %s; use 'raise', 'log', or 'ignore'", name)
	}
}
