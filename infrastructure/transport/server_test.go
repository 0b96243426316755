package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/toolcat/visimatch"
	"github.com/toolcat/visimatch/domain/embedding"
)

// fakeEmbedder satisfies catalog.Embedder without touching ONNX, mirroring
// application/service/trainer_test.go's fakePathEmbedder.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedImageURL(ctx context.Context, url string) (embedding.Embedding, error) {
	return embedding.Normalize([]float64{1, 0, 0, 0})
}

func (fakeEmbedder) Version() string { return "fake-v1" }

func newTestAdminServer(t *testing.T, apiKeys []string) *AdminServer {
	t.Helper()

	dbPath := t.TempDir() + "/visimatch.db"
	client, err := visimatch.New(
		visimatch.WithSQLite(dbPath),
		visimatch.WithEmbeddingProvider(fakeEmbedder{}),
		visimatch.WithSkipProviderValidation(true),
		visimatch.WithAPIKeys(apiKeys),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewAdminServer(":0", client, apiKeys, nil, nil)
}

func bearerToken(t *testing.T, apiKey string) string {
	t.Helper()
	tok, err := IssueAdminToken(apiKey)
	require.NoError(t, err)
	return tok
}

func TestAdminServer_StatsRequiresAuth(t *testing.T) {
	srv := newTestAdminServer(t, []string{"secret-key"})

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminServer_StatsWithValidToken(t *testing.T) {
	srv := newTestAdminServer(t, []string{"secret-key"})

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "secret-key"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pending_tasks")
}

func TestAdminServer_RejectsWrongSigningKey(t *testing.T) {
	srv := newTestAdminServer(t, []string{"secret-key"})

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "some-other-key"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminServer_HealthzIsUnauthenticated(t *testing.T) {
	srv := newTestAdminServer(t, []string{"secret-key"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminServer_TrainEnqueuesSession(t *testing.T) {
	srv := newTestAdminServer(t, []string{"secret-key"})

	req := httptest.NewRequest(http.MethodPost, "/admin/train", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "secret-key"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAdminServer_RestoreBackupMissingVersion(t *testing.T) {
	srv := newTestAdminServer(t, []string{"secret-key"})

	req := httptest.NewRequest(http.MethodPost, "/admin/backups//restore", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "secret-key"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.NotEqual(t, http.StatusAccepted, rec.Code)
}

func TestAdminServer_NoConfiguredKeysRejectsAll(t *testing.T) {
	srv := newTestAdminServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "irrelevant")) // not actually signed with a real key path
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIssueAdminTokenAudience(t *testing.T) {
	tok := bearerToken(t, "secret-key")

	parsed, err := jwt.ParseWithClaims(tok, &claims{}, func(t *jwt.Token) (any, error) {
		return []byte("secret-key"), nil
	})
	require.NoError(t, err)
	c := parsed.Claims.(*claims)
	require.Equal(t, jwt.ClaimStrings{adminAudience}, c.Audience)
}
