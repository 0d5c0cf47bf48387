package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedisCacheRoundTrip(test *testing.T) {
	test.Parallel()
	server := miniredis.RunT(test)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	test.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCache(client)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, cacheKeyCourseList); err != nil || ok {
		test.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, cacheKeyCourseList, []byte(`{"courses":[]}`), time.Minute); err != nil {
		test.Fatalf("set: %v", err)
	}
	value, ok, err := cache.Get(ctx, cacheKeyCourseList)
	if err != nil || !ok || string(value) != `{"courses":[]}` {
		test.Fatalf("unexpected hit %q ok=%v err=%v", value, ok, err)
	}
	if err := cache.Delete(ctx, invalidationKeys("course-1")...); err != nil {
		test.Fatalf("delete: %v", err)
	}
	if server.Exists(cacheKeyCourseList) {
		test.Fatalf("expected list key to be deleted")
	}

	if err := cache.Set(ctx, courseCacheKey("course-2"), []byte(`{}`), time.Second); err != nil {
		test.Fatalf("set: %v", err)
	}
	server.FastForward(2 * time.Second)
	if _, ok, _ := cache.Get(ctx, courseCacheKey("course-2")); ok {
		test.Fatalf("expected entry to expire")
	}
}

func TestInvalidationKeysSkipsEmptyCourse(test *testing.T) {
	test.Parallel()
	keys := invalidationKeys("", "course-1")
	if len(keys) != 2 || keys[0] != cacheKeyCourseList || keys[1] != courseCacheKey("course-1") {
		test.Fatalf("unexpected keys %v", keys)
	}
}

func TestZapOperationLoggerLevels(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapOperationLogger(zap.New(core))
	email, err := booking.NewEmail("ada@example.com")
	if err != nil {
		test.Fatalf("email: %v", err)
	}
	ctx := context.Background()
	logger.LogOperation(ctx, booking.OperationLog{Operation: "reserve", Email: email, CourseID: "course-1", Amount: 2500, Status: "ok"})
	logger.LogOperation(ctx, booking.OperationLog{Operation: "confirm_payment", Status: "error", Error: booking.ErrPaymentMismatch})
	logger.LogOperation(ctx, booking.OperationLog{Operation: "reserve", Status: "error", Error: errors.New("disk full")})

	entries := logs.All()
	if len(entries) != 3 {
		test.Fatalf("expected three entries, got %d", len(entries))
	}
	expected := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for index, entry := range entries {
		if entry.Level != expected[index] {
			test.Fatalf("entry %d: expected %s, got %s", index, expected[index], entry.Level)
		}
	}
	if entries[0].ContextMap()["course_id"] != "course-1" || entries[0].ContextMap()["amount_cents"] != int64(2500) {
		test.Fatalf("unexpected fields %v", entries[0].ContextMap())
	}
}

func TestConfigValidate(test *testing.T) {
	test.Parallel()
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.ReserveRatePerMinute != defaultReserveRatePerMinute || cfg.AvailabilityCacheTTL != defaultAvailabilityCacheTTL {
		test.Fatalf("defaults not applied: %+v", cfg)
	}
	wildcard := Config{AllowedOrigins: []string{"*"}}
	if err := wildcard.Validate(); err == nil {
		test.Fatalf("expected wildcard origin to be rejected")
	}
	if origins := ParseAllowedOrigins(" https://a.example , ,https://b.example"); len(origins) != 2 || origins[1] != "https://b.example" {
		test.Fatalf("unexpected origins %v", origins)
	}
}

func TestRateLimiterPerClient(test *testing.T) {
	test.Parallel()
	limiter := NewRateLimiter(1, 1)
	current := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	limiter.nowFn = func() time.Time { return current }
	if !limiter.Allow("10.0.0.1") || limiter.Allow("10.0.0.1") {
		test.Fatalf("expected one request per minute for a client")
	}
	if !limiter.Allow("10.0.0.2") {
		test.Fatalf("clients must not share a bucket")
	}
	current = current.Add(time.Minute)
	if !limiter.Allow("10.0.0.1") {
		test.Fatalf("expected bucket to refill")
	}
	current = current.Add(visitorIdleTimeout + time.Second)
	limiter.Allow("10.0.0.3")
	if len(limiter.visitors) != 1 {
		test.Fatalf("expected idle visitors evicted, got %d", len(limiter.visitors))
	}
}
