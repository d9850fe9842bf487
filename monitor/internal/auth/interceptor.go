package auth

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
)

// ModeAPIKey turns key checking on.
const ModeAPIKey = "apikey"

// Options holds the guard settings shared by every interceptor.
type Options struct {
	Mode   string
	Header string // lowercase
	Key    string
}

// FromConfig resolves Options from the server auth section.
func FromConfig(cfg config.AuthConfig) Options {
	return Options{Mode: cfg.Mode, Header: cfg.EffectiveHeader(), Key: cfg.Key()}
}

func (o Options) enabled() bool {
	return o.Mode == ModeAPIKey && o.Key != ""
}

func (o Options) matches(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(o.Key)) == 1
}

// APIKeyInterceptor returns a unary interceptor that checks the key in the
// incoming gRPC metadata.
func APIKeyInterceptor(opts Options) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := opts.authorize(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// APIKeyStreamInterceptor is the streaming counterpart of APIKeyInterceptor,
// used by the health Watch method.
func APIKeyStreamInterceptor(opts Options) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := opts.authorize(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (o Options) authorize(ctx context.Context) error {
	if !o.enabled() {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(o.Header)
	if len(vals) == 0 || !o.matches(vals[0]) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}
