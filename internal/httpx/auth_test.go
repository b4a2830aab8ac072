package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalCapabilities(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapManageInventory, true},
		{RoleAdmin, CapAgent, false},
		{RoleEditor, CapManageBookings, true},
		{RoleAgent, CapAgent, true},
		{RoleAgent, CapManageBookings, false},
		{RoleTraveler, CapBook, true},
		{RoleTraveler, CapManageInventory, false},
		{RoleViewer, CapBook, true},
		{Role("ghost"), CapBook, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.cap), func(t *testing.T) {
			assert.Equal(t, tt.want, Principal{UserID: "u", Role: tt.role}.Can(tt.cap))
		})
	}
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := a.Sign(Principal{UserID: "u-7", Role: RoleAgent}, time.Minute)
	require.NoError(t, err)

	p, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u-7", Role: RoleAgent}, p)
}

func TestAuthenticator_Rejects(t *testing.T) {
	a := NewAuthenticator("s3cret")

	expired, err := a.Sign(Principal{UserID: "u", Role: RoleTraveler}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	assert.Error(t, err)

	unknownRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "root",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = a.Parse(unknownRole)
	assert.Error(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "admin"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = a.Parse(noSubject)
	assert.Error(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = a.Parse(hs512)
	assert.Error(t, err)
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require(CapManageInventory)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "t", Role: RoleTraveler})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "e", Role: RoleEditor})))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0))

	rl := NewRateLimiter(6) // 0.1/s, burst 1
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("user:a"))
	assert.False(t, rl.Allow("user:a"))
	assert.True(t, rl.Allow("user:b"), "buckets are per caller")

	now = now.Add(10 * time.Second)
	assert.True(t, rl.Allow("user:a"))

	now = now.Add(time.Hour)
	rl.Sweep(30 * time.Minute)
	assert.Empty(t, rl.entries)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "u", Role: RoleTraveler}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))

	var nilLimiter *RateLimiter
	rec = httptest.NewRecorder()
	nilLimiter.Middleware(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
