package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// handled by the server, streams included. It logs the procedure name,
// user ID, duration, and any error codes/messages.
func LoggingInterceptor() connect.Interceptor {
	return loggingInterceptor{}
}

type loggingInterceptor struct{}

func (loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(ctx, req.Spec().Procedure, start, err)
		return resp, err
	}
}

func (loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		slog.Info("RPC stream opened", "procedure", conn.Spec().Procedure, "user_id", GetUserID(ctx))
		err := next(ctx, conn)
		logCall(ctx, conn.Spec().Procedure, start, err)
		return err
	}
}

func logCall(ctx context.Context, procedure string, start time.Time, err error) {
	userID := GetUserID(ctx) // empty if pre-auth
	duration := time.Since(start).Milliseconds()

	if err != nil {
		var connectErr *connect.Error
		if errors.As(err, &connectErr) {
			slog.Warn("RPC error",
				"procedure", procedure,
				"code", connectErr.Code(),
				"error", connectErr.Message(),
				"user_id", userID,
				"duration_ms", duration,
			)
		} else {
			slog.Error("RPC error",
				"procedure", procedure,
				"error", err,
				"user_id", userID,
				"duration_ms", duration,
			)
		}
		return
	}

	slog.Info("RPC ok",
		"procedure", procedure,
		"user_id", userID,
		"duration_ms", duration,
	)
}
