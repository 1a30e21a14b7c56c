package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/idempotency"
	"github.com/acme/petadoption/internal/pkg/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns the defaults with an in-memory database and an
// ephemeral port.
func testConfig(t *testing.T, dbName string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Server.Port = 0
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = "file:" + dbName + "?mode=memory&cache=shared"
	return cfg
}

func startService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc
}

func createKey(t *testing.T, svc *Service, owner string, level domain.AccessLevel) string {
	t.Helper()
	key, err := svc.keys.Create(context.Background(), owner, level, nil)
	if err != nil {
		t.Fatalf("Create key failed: %v", err)
	}
	return key.KeyValue
}

type request struct {
	method, path, body string
	apiKey, idemKey    string
	forwardedFor       string
}

func serve(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.apiKey != "" {
		r.Header.Set("X-API-Key", req.apiKey)
	}
	if req.idemKey != "" {
		r.Header.Set(idempotency.HeaderKey, req.idemKey)
	}
	if req.forwardedFor != "" {
		r.Header.Set("X-Forwarded-For", req.forwardedFor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestService_New_RequiredOptions(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("Expected error without config provider")
	}
	if err.Error() != "config provider required (use WithFileConfig or WithConfig)" {
		t.Errorf("Unexpected error: %v", err)
	}

	if _, err := New(WithConfig(nil)); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := New(WithLogger(nil)); err == nil {
		t.Error("Expected error for nil logger")
	}
}

func TestService_Start_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "svc_invalid")
	cfg.RateLimit.MaxRequests = 0

	svc, err := New(WithLogger(quietLogger()), WithConfig(cfg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		svc.Shutdown(context.Background())
		t.Fatal("Expected Start to fail on invalid config")
	}
}

func TestService_Start_And_Shutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
server:
  port: 0
storage:
  driver: sqlite
  dsn: ` + filepath.Join(tmpDir, "data", "pets.db") + `
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, err := New(WithLogger(quietLogger()), WithFileConfig(configPath))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, port, err := net.SplitHostPort(svc.Addr())
	if err != nil {
		t.Fatalf("Addr() = %q: %v", svc.Addr(), err)
	}

	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Storage != "ok" {
		t.Errorf("health = %+v", health)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "data", "pets.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestService_Pipeline(t *testing.T) {
	cfg := testConfig(t, "svc_pipeline")
	cfg.RateLimit.MaxRequests = 100
	svc := startService(t, WithConfig(cfg))
	h := svc.Handler()

	writer := createKey(t, svc, "abrigo", domain.AccessReadWrite)
	reader := createKey(t, svc, "leitor", domain.AccessReadOnly)
	body := `{"nome":"Vira-lata","descricao":"SRD"}`

	t.Run("missing key", func(t *testing.T) {
		rec := serve(t, h, request{method: http.MethodPost, path: "/v2/racas", body: body, idemKey: "k"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("read only key", func(t *testing.T) {
		rec := serve(t, h, request{method: http.MethodPost, path: "/v2/racas", body: body, apiKey: reader, idemKey: "k"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("missing idempotency key", func(t *testing.T) {
		rec := serve(t, h, request{method: http.MethodPost, path: "/v2/racas", body: body, apiKey: writer})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	first := serve(t, h, request{method: http.MethodPost, path: "/v2/racas", body: body, apiKey: writer, idemKey: "create-1"})
	if first.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", first.Code, first.Body.String())
	}
	if first.Header().Get(idempotency.HeaderStatus) != "" {
		t.Error("first response should not be marked as replay")
	}
	if first.Header().Get("X-RateLimit-Limit") != "100" {
		t.Errorf("X-RateLimit-Limit = %q", first.Header().Get("X-RateLimit-Limit"))
	}

	replayed := serve(t, h, request{method: http.MethodPost, path: "/v2/racas", body: body, apiKey: writer, idemKey: "create-1"})
	if replayed.Code != http.StatusCreated {
		t.Fatalf("replay status = %d", replayed.Code)
	}
	if got := replayed.Header().Get(idempotency.HeaderStatus); got != idempotency.StatusReplay {
		t.Errorf("%s = %q", idempotency.HeaderStatus, got)
	}
	if replayed.Body.String() != first.Body.String() {
		t.Errorf("replayed body = %s, want %s", replayed.Body.String(), first.Body.String())
	}
	if replayed.Header().Get("Location") != first.Header().Get("Location") {
		t.Errorf("Location = %q, want %q", replayed.Header().Get("Location"), first.Header().Get("Location"))
	}

	list := serve(t, h, request{method: http.MethodGet, path: "/v2/racas"})
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d", list.Code)
	}
	var racas []domain.Raca
	if err := json.Unmarshal(list.Body.Bytes(), &racas); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(racas) != 1 {
		t.Errorf("len(racas) = %d, want 1 (replay must not create)", len(racas))
	}

	t.Run("admin requires key for writes", func(t *testing.T) {
		rec := serve(t, h, request{method: http.MethodPost, path: "/admin/apikeys",
			body: `{"ownerName":"novo","accessLevel":"READ_ONLY"}`})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestService_AdocaoRetryAfterRejectedReference(t *testing.T) {
	cfg := testConfig(t, "svc_adocao_retry")
	cfg.RateLimit.MaxRequests = 100
	svc := startService(t, WithConfig(cfg))
	h := svc.Handler()
	writer := createKey(t, svc, "abrigo", domain.AccessReadWrite)

	dogRec := serve(t, h, request{method: http.MethodPost, path: "/v1/cachorros",
		body: `{"nome":"Caramelo"}`, apiKey: writer, idemKey: "dog-1"})
	if dogRec.Code != http.StatusCreated {
		t.Fatalf("create dog status = %d, body = %s", dogRec.Code, dogRec.Body.String())
	}
	var dog domain.Cachorro
	if err := json.Unmarshal(dogRec.Body.Bytes(), &dog); err != nil {
		t.Fatalf("decode dog: %v", err)
	}

	adocao := func(cachorroID int64) string {
		return `{"dataSolicitacao":"2024-05-01","justificativa":"Quintal grande","status":"PENDENTE","cachorro":{"id":` +
			strconv.FormatInt(cachorroID, 10) + `}}`
	}

	rejected := serve(t, h, request{method: http.MethodPost, path: "/v2/adocoes",
		body: adocao(dog.ID + 999), apiKey: writer, idemKey: "x"})
	if rejected.Code != http.StatusBadRequest {
		t.Fatalf("unknown dog status = %d, want 400", rejected.Code)
	}
	if !strings.Contains(rejected.Body.String(), "Cachorro com id "+strconv.FormatInt(dog.ID+999, 10)+" não existe") {
		t.Errorf("unknown dog body = %s", rejected.Body.String())
	}

	retried := serve(t, h, request{method: http.MethodPost, path: "/v2/adocoes",
		body: adocao(dog.ID), apiKey: writer, idemKey: "x"})
	if retried.Code != http.StatusCreated {
		t.Fatalf("retry status = %d, want 201, body = %s", retried.Code, retried.Body.String())
	}
	if retried.Header().Get(idempotency.HeaderStatus) != "" {
		t.Error("retry after a rejected request must run the handler, not replay")
	}
	var created domain.Adocao
	if err := json.Unmarshal(retried.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode adocao: %v", err)
	}
	if created.Cachorro == nil || created.Cachorro.ID != dog.ID {
		t.Errorf("cachorro = %+v, want id %d", created.Cachorro, dog.ID)
	}

	replayed := serve(t, h, request{method: http.MethodPost, path: "/v2/adocoes",
		body: adocao(dog.ID), apiKey: writer, idemKey: "x"})
	if replayed.Header().Get(idempotency.HeaderStatus) != idempotency.StatusReplay {
		t.Error("third request with the same key should replay the 201")
	}
	if replayed.Body.String() != retried.Body.String() {
		t.Errorf("replayed body = %s, want %s", replayed.Body.String(), retried.Body.String())
	}
}

func TestService_StartThenImmediateShutdown(t *testing.T) {
	for i := 0; i < 5; i++ {
		svc, err := New(WithLogger(quietLogger()), WithConfig(testConfig(t, "svc_quick_stop_"+strconv.Itoa(i))))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := svc.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		_, port, err := net.SplitHostPort(svc.Addr())
		if err != nil {
			t.Fatalf("Addr() = %q: %v", svc.Addr(), err)
		}
		addr := net.JoinHostPort("127.0.0.1", port)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = svc.Shutdown(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Shutdown failed: %v", err)
		}

		// The serve goroutine runs against the stopped server and closes
		// the listener.
		closed := false
		for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); {
			conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
			if err != nil {
				closed = true
				break
			}
			conn.Close()
			time.Sleep(20 * time.Millisecond)
		}
		if !closed {
			t.Errorf("listener on %s still accepting after Shutdown", addr)
		}
	}
}

func TestService_RateLimit(t *testing.T) {
	cfg := testConfig(t, "svc_ratelimit")
	cfg.RateLimit.MaxRequests = 2
	svc := startService(t, WithConfig(cfg))
	h := svc.Handler()

	for i := 0; i < 2; i++ {
		rec := serve(t, h, request{method: http.MethodGet, path: "/racas", forwardedFor: "203.0.113.7"})
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	rec := serve(t, h, request{method: http.MethodGet, path: "/racas", forwardedFor: "203.0.113.7, 10.0.0.1"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	// Anonymous requests without a forwarded address are not limited.
	rec = serve(t, h, request{method: http.MethodGet, path: "/racas"})
	if rec.Code != http.StatusOK {
		t.Errorf("anonymous status = %d, want 200", rec.Code)
	}
}

func TestService_Reload(t *testing.T) {
	cfg := testConfig(t, "svc_reload")
	svc := startService(t, WithConfig(cfg))

	next := *cfg
	next.RateLimit.WindowSeconds = 30
	next.RateLimit.MaxRequests = 1
	next.Idempotency.DefaultTTLSeconds = 120

	if err := svc.reload(&next); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if got := svc.limiter.Settings(); got.WindowSeconds != 30 || got.MaxRequests != 1 {
		t.Errorf("limiter settings = %+v", got)
	}
	if got := svc.registry.DefaultTTL(); got != 120*time.Second {
		t.Errorf("DefaultTTL = %v, want 2m", got)
	}

	h := svc.Handler()
	serve(t, h, request{method: http.MethodGet, path: "/racas", forwardedFor: "198.51.100.1"})
	rec := serve(t, h, request{method: http.MethodGet, path: "/racas", forwardedFor: "198.51.100.1"})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 after lowering the limit", rec.Code)
	}

	bad := next
	bad.RateLimit.MaxRequests = 0
	if err := svc.reload(&bad); err == nil {
		t.Error("expected reload to reject a non-positive limit")
	}
	if got := svc.limiter.Settings().MaxRequests; got != 1 {
		t.Errorf("MaxRequests = %d after rejected reload, want 1", got)
	}
}

func TestService_FileReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	write := func(max int) {
		content := `
server:
  port: 0
storage:
  driver: sqlite
  dsn: "file:svc_file_reload?mode=memory&cache=shared"
rate:
  limit:
    max:
      requests: ` + strconv.Itoa(max) + `
`
		if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(10)

	svc := startService(t, WithFileConfig(configPath))
	if got := svc.limiter.Settings().MaxRequests; got != 10 {
		t.Fatalf("MaxRequests = %d, want 10", got)
	}

	write(3)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if svc.limiter.Settings().MaxRequests == 3 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("MaxRequests = %d after file change, want 3", svc.limiter.Settings().MaxRequests)
}

func TestService_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t, "svc_redis")
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Idempotency.Backend = config.BackendRedis
	cfg.Idempotency.Lock = config.LockRedis
	cfg.Redis.URL = mr.Addr()

	svc := startService(t, WithConfig(cfg))
	h := svc.Handler()
	writer := createKey(t, svc, "abrigo", domain.AccessReadWrite)

	body := `{"nome":"Beagle"}`
	first := serve(t, h, request{method: http.MethodPost, path: "/v2/racas", body: body, apiKey: writer, idemKey: "redis-1"})
	if first.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", first.Code, first.Body.String())
	}
	second := serve(t, h, request{method: http.MethodPost, path: "/v2/racas", body: body, apiKey: writer, idemKey: "redis-1"})
	if second.Header().Get(idempotency.HeaderStatus) != idempotency.StatusReplay {
		t.Error("expected replay from the redis store")
	}
	if second.Header().Get("X-RateLimit-Remaining") != "8" {
		t.Errorf("X-RateLimit-Remaining = %q, want 8", second.Header().Get("X-RateLimit-Remaining"))
	}

	if len(mr.Keys()) == 0 {
		t.Error("expected counters and records in redis")
	}
}

func TestService_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t, "svc_redis_down")
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Redis.URL = "127.0.0.1:1"

	svc, err := New(WithLogger(quietLogger()), WithConfig(cfg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		svc.Shutdown(context.Background())
		t.Fatal("Expected Start to fail without redis")
	}
}

func TestService_Metrics(t *testing.T) {
	cfg := testConfig(t, "svc_metrics")
	svc := startService(t, WithConfig(cfg))
	h := svc.Handler()

	serve(t, h, request{method: http.MethodGet, path: "/racas/42"})

	rec := serve(t, h, request{method: http.MethodGet, path: "/metrics"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `petadoption_http_requests_total{method="GET",route="/racas/{id}",status="404"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}

func TestService_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t, "svc_metrics_off")
	cfg.Metrics.Enabled = false
	svc := startService(t, WithConfig(cfg))

	rec := serve(t, svc.Handler(), request{method: http.MethodGet, path: "/metrics"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestService_Tracing(t *testing.T) {
	cfg := testConfig(t, "svc_tracing")
	cfg.Telemetry.Enabled = true

	var spans strings.Builder
	svc := startService(t, WithConfig(cfg), WithTraceOutput(&spans))

	rec := serve(t, svc.Handler(), request{method: http.MethodGet, path: "/racas"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !strings.Contains(spans.String(), "racas.list") {
		t.Errorf("expected a racas.list span, got %q", spans.String())
	}
}
