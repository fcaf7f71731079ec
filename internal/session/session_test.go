package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func signClaims(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("api-side-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []Claims{
		{Email: "ana@clinica.com", Role: RoleUser, MustChangePassword: false},
		{Email: "root@clinica.com", Role: RoleAdmin, MustChangePassword: true},
	}

	for _, want := range tests {
		got, err := Decode(signClaims(t, want))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Email != want.Email || got.Role != want.Role || got.MustChangePassword != want.MustChangePassword {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}
}

func TestDecodeIgnoresSignature(t *testing.T) {
	token := signClaims(t, Claims{Email: "ana@clinica.com", Role: RoleUser})
	tampered := token[:len(token)-4] + "AAAA"

	claims, err := Decode(tampered)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Email != "ana@clinica.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
}

func TestDecodeFallsBackToSubject(t *testing.T) {
	token := signClaims(t, Claims{Role: RoleUser, RegisteredClaims: jwt.RegisteredClaims{Subject: "bia@clinica.com"}})

	claims, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Email != "bia@clinica.com" {
		t.Fatalf("expected subject used as email, got %q", claims.Email)
	}
}

func TestDecodeRejectsMalformedCredentials(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	tests := []string{
		"",
		"   ",
		"not-a-token",
		header + ".%%%." + "sig",
		header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig",
	}

	for _, credential := range tests {
		if _, err := Decode(credential); !errors.Is(err, ErrDecode) {
			t.Fatalf("expected ErrDecode for %q, got %v", credential, err)
		}
	}
}

func TestAuthorize(t *testing.T) {
	admin := &Session{ID: "1", Token: "t", Role: RoleAdmin}
	user := &Session{ID: "2", Token: "t", Role: RoleUser}
	anonymous := &Session{ID: "3"}

	tests := []struct {
		name     string
		sess     *Session
		required []Role
		want     Decision
	}{
		{"admin-only view as usuario", user, []Role{RoleAdmin}, RedirectTo(DashboardPath)},
		{"usuario view while anonymous", anonymous, []Role{RoleUser}, RedirectTo(LoginPath)},
		{"nil session", nil, nil, RedirectTo(LoginPath)},
		{"any role", user, nil, Allow()},
		{"admin view as admin", admin, []Role{RoleAdmin}, Allow()},
		{"usuario view as admin", admin, []Role{RoleUser}, RedirectTo(DashboardPath)},
	}

	for _, tc := range tests {
		if got := Authorize(tc.sess, tc.required...); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestLandingPath(t *testing.T) {
	tests := []struct {
		claims Claims
		want   string
	}{
		{Claims{Role: RoleAdmin, MustChangePassword: true}, ChangePasswordPath},
		{Claims{Role: RoleUser, MustChangePassword: true}, ChangePasswordPath},
		{Claims{Role: RoleAdmin}, UserManagementPath},
		{Claims{Role: RoleUser}, DashboardPath},
		{Claims{}, DashboardPath},
	}

	for _, tc := range tests {
		if got := LandingPath(tc.claims); got != tc.want {
			t.Fatalf("LandingPath(%+v) = %q, want %q", tc.claims, got, tc.want)
		}
	}
}

func TestMenuPerRole(t *testing.T) {
	if got := Menu(RoleAdmin); len(got) != 1 || got[0].Path != UserManagementPath {
		t.Fatalf("unexpected admin menu %+v", got)
	}
	if got := Menu(RoleUser); len(got) == 0 || got[0].Path != DashboardPath {
		t.Fatalf("unexpected usuario menu %+v", got)
	}
	if got := Menu(""); len(got) != 0 {
		t.Fatalf("expected empty menu for unknown role, got %+v", got)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	sess := Session{ID: "abc", Token: "tok", Role: RoleUser, Email: "ana@clinica.com"}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sess {
		t.Fatalf("expected %+v, got %+v", sess, got)
	}

	now = now.Add(2 * time.Hour)
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted session, got %v", err)
	}
}

func TestMemoryStoreRequiresID(t *testing.T) {
	if err := NewMemoryStore(time.Hour).Save(context.Background(), Session{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

type stubRedis struct {
	store map[string]string
	ttl   map[string]time.Duration
}

func (s *stubRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if s.store == nil {
		s.store = make(map[string]string)
		s.ttl = make(map[string]time.Duration)
	}
	switch v := value.(type) {
	case []byte:
		s.store[key] = string(v)
	default:
		s.store[key] = fmt.Sprint(v)
	}
	s.ttl[key] = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	val, ok := s.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (s *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := s.store[key]; ok {
			delete(s.store, key)
			removed++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func TestRedisStoreLifecycle(t *testing.T) {
	client := &stubRedis{}
	store := NewRedisStore(client, 30*time.Minute)
	ctx := context.Background()

	sess := Session{ID: "sid-1", Token: "tok", Role: RoleAdmin, Email: "root@clinica.com", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if client.ttl[redisKeyPrefix+"sid-1"] != 30*time.Minute {
		t.Fatalf("expected ttl propagated, got %v", client.ttl[redisKeyPrefix+"sid-1"])
	}
	if payload := client.store[redisKeyPrefix+"sid-1"]; !strings.Contains(payload, `"createdAt":"2026-01-02T03:04:05Z"`) {
		t.Fatalf("expected camelCase createdAt in payload, got %s", payload)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) || got.Token != sess.Token || got.Role != sess.Role || got.Email != sess.Email {
		t.Fatalf("expected %+v, got %+v", sess, got)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRejectsCorruptPayload(t *testing.T) {
	client := &stubRedis{store: map[string]string{redisKeyPrefix + "bad": "{"}}
	if _, err := NewRedisStore(client, time.Minute).Get(context.Background(), "bad"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
