package logger

import (
	"context"

	"perpBacktester/internal/ports"
)

// Nop discards everything. It is the default logger for library callers that pass none.
type Nop struct{}

func (Nop) Debug(ctx context.Context, msg string, fields ...ports.Fields)            {}
func (Nop) Info(ctx context.Context, msg string, fields ...ports.Fields)             {}
func (Nop) Warn(ctx context.Context, msg string, fields ...ports.Fields)             {}
func (Nop) Error(ctx context.Context, err error, msg string, fields ...ports.Fields) {}
