package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// healthMethodPrefix is left open so health checks do not need the API token
const healthMethodPrefix = "/grpc.health.v1.Health/"

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the authorization token from request metadata.
// If the token is missing or invalid, it returns status.Unauthenticated.
// If valid, it calls the handler with the original context.
func AuthInterceptor(validToken string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := authorize(ctx, info.FullMethod, validToken); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming counterpart of AuthInterceptor
func StreamAuthInterceptor(validToken string) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := authorize(ss.Context(), info.FullMethod, validToken); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func authorize(ctx context.Context, fullMethod, validToken string) error {
	if strings.HasPrefix(fullMethod, healthMethodPrefix) {
		return nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}

	if authHeaders[0] != validToken {
		return status.Error(codes.Unauthenticated, "invalid token")
	}

	return nil
}
