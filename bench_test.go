package goGuard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var benchUser = testUser{id: 1, hash: []byte("bench"), verified: true, role: RoleAdmin}

func BenchmarkLoad(b *testing.B) {
	env := newTestEnv(b, DefaultConfig(), benchUser)
	id := env.loginFresh(b, benchUser)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if sess := env.engine.Load(ctx, env.engine.NewHandle(id)); !sess.IsAuthenticated() {
			b.Fatal("session did not load")
		}
	}
}

func BenchmarkCheckRequirements(b *testing.B) {
	env := newTestEnv(b, DefaultConfig(), benchUser)
	sess := env.load(env.loginFresh(b, benchUser))
	reqs := AuthRequirements().Authenticated().Verified().NotBanned().TOTPVerified().RoleAtLeast(RoleModerator)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := CheckRequirements(ctx, sess, reqs); err != nil {
			b.Fatalf("check failed: %v", err)
		}
	}
}

func BenchmarkLoginRedis(b *testing.B) {
	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = client.Close() })

	engine, err := New[int64, testUser]().
		WithBackend(newTestBackend(benchUser)).
		WithRedis(client).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(func() { _ = engine.Close(context.Background()) })
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sess := engine.Load(ctx, engine.NewHandle(""))
		if err := sess.Login(ctx, benchUser); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}
