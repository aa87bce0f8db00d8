// Package grpc exposes the gateway's validation pipeline to gRPC
// traffic. Interceptors build a synthetic http.Request from call
// metadata so the HTTP middlewares enforce the same policy on both
// protocols.
package grpc

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/describe-it/shield/internal/security"
)

// ValidationUnaryInterceptor returns a gRPC unary server interceptor
// that applies the gateway's middleware pipeline to each call.
func ValidationUnaryInterceptor(middlewares []security.Middleware, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		httpReq := buildSyntheticRequest(ctx, info.FullMethod)

		if err := applyPipeline(httpReq, middlewares); err != nil {
			logger.Warn("gRPC call rejected by validation pipeline",
				slog.String("method", info.FullMethod),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		return handler(propagateContext(ctx, httpReq), req)
	}
}

// ValidationStreamInterceptor returns the stream-side equivalent of
// ValidationUnaryInterceptor.
func ValidationStreamInterceptor(middlewares []security.Middleware, logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx := ss.Context()
		httpReq := buildSyntheticRequest(ctx, info.FullMethod)

		if err := applyPipeline(httpReq, middlewares); err != nil {
			logger.Warn("gRPC stream rejected by validation pipeline",
				slog.String("method", info.FullMethod),
				slog.String("error", err.Error()),
			)
			return err
		}

		return handler(srv, &contextServerStream{
			ServerStream: ss,
			ctx:          propagateContext(ctx, httpReq),
		})
	}
}

// buildSyntheticRequest creates an http.Request from gRPC metadata so
// the HTTP-based middlewares can process the call.
func buildSyntheticRequest(ctx context.Context, fullMethod string) *http.Request {
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, fullMethod, io.NopCloser(bytes.NewReader(nil)))

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for key, values := range md {
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}
	}

	// RemoteAddr from peer info feeds IP-scoped rate limiting.
	if p, ok := peer.FromContext(ctx); ok {
		httpReq.RemoteAddr = p.Addr.String()
	}

	return httpReq
}

// applyPipeline runs the HTTP pipeline against a synthetic request.
// Returns a gRPC status error if the pipeline rejects the call.
func applyPipeline(req *http.Request, middlewares []security.Middleware) error {
	passed := false
	passHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		passed = true
		// Capture context values the middlewares attached.
		*req = *r
	})

	handler := security.ApplyPipeline(passHandler, middlewares)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if !passed {
		code := httpStatusToGRPCCode(recorder.Code)
		return status.Errorf(code, "%s", recorder.Body.String())
	}
	return nil
}

// propagateContext merges the pipeline's context values into the gRPC
// context without disturbing its deadline or cancellation.
func propagateContext(grpcCtx context.Context, httpReq *http.Request) context.Context {
	return &mergedContext{
		Context: grpcCtx,
		httpCtx: httpReq.Context(),
	}
}

// mergedContext uses the gRPC context for deadlines and cancellation,
// falling back to the HTTP context for Value() lookups.
type mergedContext struct {
	context.Context
	httpCtx context.Context
}

func (c *mergedContext) Value(key interface{}) interface{} {
	if v := c.Context.Value(key); v != nil {
		return v
	}
	return c.httpCtx.Value(key)
}

// httpStatusToGRPCCode maps pipeline rejection statuses to gRPC codes.
func httpStatusToGRPCCode(httpCode int) codes.Code {
	switch httpCode {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// contextServerStream wraps a grpc.ServerStream with a custom context.
type contextServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextServerStream) Context() context.Context {
	return s.ctx
}
