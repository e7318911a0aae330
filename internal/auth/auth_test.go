package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "valid", header: "Bearer abc123", want: "abc123"},
		{name: "trailing space", header: "Bearer abc123  ", want: "abc123"},
		{name: "missing", header: "", wantErr: ErrMissingToken},
		{name: "wrong scheme", header: "Basic abc", wantErr: ErrBadHeader},
		{name: "blank token", header: "Bearer    ", wantErr: ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tokens := []TokenConfig{
		{Name: "ops", Token: "tok-ops", Scopes: []string{"invocations:rw", " "}},
		{Name: "dash", Token: "tok-dash", Scopes: []string{"events:ro"}},
	}

	p, ok := Authenticate("tok-ops", tokens)
	require.True(t, ok)
	assert.Equal(t, "ops", p.Name)
	assert.True(t, HasAnyScope(p, ScopeInvocationsRO), "rw implies ro")
	assert.False(t, HasAnyScope(p, ScopeEventsRO))

	p, ok = Authenticate("tok-dash", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeEventsRO))
	assert.False(t, HasAnyScope(p, ScopeInvocationsRO))

	_, ok = Authenticate("tok-nope", tokens)
	assert.False(t, ok)
	_, ok = Authenticate("", []TokenConfig{{Token: ""}})
	assert.False(t, ok, "empty tokens never match")
}

func TestWildcardScope(t *testing.T) {
	p, ok := Authenticate("root", []TokenConfig{{Token: "root", Scopes: []string{"*"}}})
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeInvocationsRO, ScopeEventsRO))
	assert.True(t, HasAnyScope(Principal{}), "no requirement")
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Name: "ops"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "ops", p.Name)
}

func TestKnownScope(t *testing.T) {
	assert.True(t, KnownScope("events:ro"))
	assert.False(t, KnownScope("plugin:rw"))
}
