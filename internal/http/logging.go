package http

import (
	"context"
	"log/slog"

	"github.com/example/hall-allocation/internal/application"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger scopes the request logger to one handler operation and tags
// it with the acting principal once the session middleware has run.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := make([]any, 0, 8+len(attrs))
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if principal, ok := PrincipalFromContext(ctx); ok {
		pairs = append(pairs, "actor_role", actorRole(principal))
		if principal.RollNumber != "" {
			pairs = append(pairs, "roll_number", principal.RollNumber)
		}
	}
	return logger.With(append(pairs, attrs...)...)
}

func actorRole(principal application.Principal) application.Role {
	if principal.IsAdmin {
		return application.RoleWarden
	}
	return application.RoleStudent
}
