package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig(generalBurst, queryBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // テスト中に補充されない程度に低く
		GeneralBurst:    generalBurst,
		QueryRate:       rate.Limit(0.001),
		QueryBurst:      queryBurst,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestGeneralMiddleware_AllowsWithinBurst はバースト以内のリクエストが許可されることを検証する。
func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(3, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
		req.RemoteAddr = "192.0.2.1:50000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Result().StatusCode)
		}
	}
}

// TestGeneralMiddleware_RejectsOverBurst はバースト超過で429が返ることを検証する。
func TestGeneralMiddleware_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	var lastStatus int
	var lastBody ErrorResponseBody
	var retryAfter string
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
		req.RemoteAddr = "192.0.2.1:50000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		lastStatus = w.Result().StatusCode
		if lastStatus == http.StatusTooManyRequests {
			retryAfter = w.Result().Header.Get("Retry-After")
			json.NewDecoder(w.Result().Body).Decode(&lastBody)
		}
	}

	if lastStatus != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", lastStatus)
	}
	if retryAfter == "" {
		t.Error("Retry-After header missing")
	}
	if lastBody.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", lastBody.Code)
	}
	if lastBody.Category != "system" {
		t.Errorf("category = %q, want system", lastBody.Category)
	}
}

// TestRateLimiter_PerIPIsolation は別IPのリクエストが互いに影響しないことを検証する。
func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// 1つ目のIPはバーストを使い切る
	req1 := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req1.RemoteAddr = "192.0.2.1:50000"
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	w1 := httptest.NewRecorder()
	req1b := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req1b.RemoteAddr = "192.0.2.1:50001"
	handler.ServeHTTP(w1, req1b)
	if w1.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("same IP second request: status = %d, want 429", w1.Result().StatusCode)
	}

	// 別IPはまだ許可される
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req2.RemoteAddr = "198.51.100.7:40000"
	handler.ServeHTTP(w2, req2)
	if w2.Result().StatusCode != http.StatusOK {
		t.Errorf("different IP: status = %d, want 200", w2.Result().StatusCode)
	}

	if count := rl.GeneralLimiterCount(); count != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", count)
	}
}

// TestQueryMiddleware_IndependentOfGeneral は問い合わせ制限が全般制限と独立なことを検証する。
func TestQueryMiddleware_IndependentOfGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(10, 1))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	query := rl.QueryMiddleware()(okHandler())

	// 問い合わせのバーストを使い切る
	reqQ := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	reqQ.RemoteAddr = "192.0.2.1:50000"
	query.ServeHTTP(httptest.NewRecorder(), reqQ)

	wQ := httptest.NewRecorder()
	reqQ2 := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	reqQ2.RemoteAddr = "192.0.2.1:50000"
	query.ServeHTTP(wQ, reqQ2)
	if wQ.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("query second request: status = %d, want 429", wQ.Result().StatusCode)
	}

	// 全般APIはまだ許可される
	wG := httptest.NewRecorder()
	reqG := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	reqG.RemoteAddr = "192.0.2.1:50000"
	general.ServeHTTP(wG, reqG)
	if wG.Result().StatusCode != http.StatusOK {
		t.Errorf("general after query exhausted: status = %d, want 200", wG.Result().StatusCode)
	}
}

// TestClientIP_PrefersForwardedFor はX-Forwarded-Forの先頭アドレスが使われることを検証する。
func TestClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP = %q, want 203.0.113.9", got)
	}
}

// TestClientIP_FallsBackToRemoteAddr はヘッダーなしでRemoteAddrのホスト部が使われることを検証する。
func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.8:54321"

	if got := clientIP(req); got != "192.0.2.8" {
		t.Errorf("clientIP = %q, want 192.0.2.8", got)
	}
}

// TestNewRateLimiterConfig_ConvertsPerMinute は毎分のリクエスト数が毎秒レートに変換されることを検証する。
func TestNewRateLimiterConfig_ConvertsPerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 20)

	if cfg.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.QueryBurst != 20 {
		t.Errorf("QueryBurst = %d, want 20", cfg.QueryBurst)
	}
}

// TestRateLimiter_CleanupRemovesStaleEntries は古いエントリがクリーンアップされることを検証する。
func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	cfg := testRateLimiterConfig(5, 5)
	cfg.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req.RemoteAddr = "192.0.2.1:50000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if count := rl.GeneralLimiterCount(); count != 1 {
		t.Fatalf("GeneralLimiterCount = %d, want 1", count)
	}

	// lastAccessがCleanupIntervalの2倍を超えるまで待つ
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rl.GeneralLimiterCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("stale limiter entry was not cleaned up")
}
