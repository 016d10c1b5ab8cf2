package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"keyrotation-auth/internal/security"
)

// AuthUnary returns a unary server interceptor that verifies the Bearer access token in the
// authorization metadata and attaches the Identity to the context.
// publicMethods is the set of full method names that do not require a token (e.g. health checks);
// a valid token on a public method is still attached.
func AuthUnary(g *Gate, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		public := publicMethods[info.FullMethod]

		raw, err := BearerToken(authorizationHeader(ctx))
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			_ = g.reject(ctx, StageNoCredential, "", "", err)
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}

		id, err := g.Verify(ctx, raw, security.TokenTypeAccess)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			if IsRejection(err) {
				return nil, status.Error(codes.Unauthenticated, "unauthorized")
			}
			g.log.ErrorContext(ctx, "authentication failed", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Internal, "internal error")
		}
		return handler(WithIdentity(ctx, id), req)
	}
}

// authorizationHeader returns the first authorization metadata value, or "".
func authorizationHeader(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
