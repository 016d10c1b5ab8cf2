package interceptors

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"keyrotation-auth/internal/security"
)

func withAuth(value string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
}

func TestAuthUnary(t *testing.T) {
	f := newGateFixture(t)
	foreign, _ := security.NewSigningKey()
	publicMethods := map[string]bool{"/grpc.health.v1.Health/Check": true}
	interceptor := AuthUnary(f.gate, publicMethods)

	var seen *Identity
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen, _ = IdentityFrom(ctx)
		return "success", nil
	}

	testCases := []struct {
		name     string
		ctx      context.Context
		method   string
		wantCode codes.Code
		wantID   bool
	}{
		{"public without token", context.Background(), "/grpc.health.v1.Health/Check", codes.OK, false},
		{"public with bad token", withAuth("Bearer junk"), "/grpc.health.v1.Health/Check", codes.OK, false},
		{"protected without token", context.Background(), "/svc/Protected", codes.Unauthenticated, false},
		{"protected lowercase scheme", withAuth("bearer " + f.token(t, security.TokenTypeAccess, f.p.SigningKey)), "/svc/Protected", codes.Unauthenticated, false},
		{"protected refresh token", withAuth("Bearer " + f.token(t, security.TokenTypeRefresh, f.p.SigningKey)), "/svc/Protected", codes.Unauthenticated, false},
		{"protected foreign key", withAuth("Bearer " + f.token(t, security.TokenTypeAccess, foreign)), "/svc/Protected", codes.Unauthenticated, false},
		{"protected valid", withAuth("Bearer " + f.token(t, security.TokenTypeAccess, f.p.SigningKey)), "/svc/Protected", codes.OK, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			resp, err := interceptor(tc.ctx, "request", &grpc.UnaryServerInfo{FullMethod: tc.method}, handler)
			if got := status.Code(err); got != tc.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", got, tc.wantCode, err)
			}
			if tc.wantCode == codes.OK && resp != "success" {
				t.Errorf("resp = %v", resp)
			}
			if tc.wantID && (seen == nil || seen.PrincipalID != f.p.ID) {
				t.Errorf("identity = %+v, want principal %s", seen, f.p.ID)
			}
			if !tc.wantID && seen != nil {
				t.Errorf("unexpected identity %+v", seen)
			}
		})
	}
}

func TestAuthUnary_StoreFailure(t *testing.T) {
	f := newGateFixture(t)
	g := NewGate(f.codec, stubLookup{err: errors.New("db down")})
	interceptor := AuthUnary(g, nil)

	_, err := interceptor(withAuth("Bearer "+f.token(t, security.TokenTypeAccess, f.p.SigningKey)), nil,
		&grpc.UnaryServerInfo{FullMethod: "/svc/Protected"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil })
	if status.Code(err) != codes.Internal {
		t.Errorf("code = %v, want Internal", status.Code(err))
	}
}

func TestClientIP_GRPC(t *testing.T) {
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.9"), Port: 4000}})
	if got := ClientIP(ctx); got != "192.0.2.9" {
		t.Errorf("ClientIP = %q", got)
	}
	// Forwarding metadata from the caller is not trusted.
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("x-forwarded-for", "198.51.100.2"))
	if got := ClientIP(ctx); got != "192.0.2.9" {
		t.Errorf("ClientIP = %q, want peer address", got)
	}
}
