package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCallTimeout — guard для вызовов без deadline.
const DefaultCallTimeout = 10 * time.Second

// UnaryServerInterceptor: логирование + recovery + timeout guard (если у вызова нет deadline).
func UnaryServerInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				slog.Error("grpc unary panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}

			code := status.Code(err)
			level := slog.LevelInfo
			switch code {
			case codes.OK, codes.NotFound, codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition:
			case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
				level = slog.LevelWarn
			default:
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", info.FullMethod),
				slog.String("code", code.String()),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.String("err", err.Error()))
			}
			slog.LogAttrs(ctx, level, "grpc unary", attrs...)
		}()

		return handler(ctx, req)
	}
}
