/*
Package middleware provides the HTTP filters of the pet adoption API.

# Pipeline

The filters run in this order around every request:
 1. RequestIDMiddleware assigns a UUID and echoes it in X-Request-ID.
 2. LoggingMiddleware emits one structured slog line per request.
 3. Metrics observes count and latency per chi route pattern.
 4. Recoverer (chi) turns panics into 500s.
 5. otelhttp opens the server span.
 6. Auth validates X-API-Key. GET requests and API docs pass without a key.
    POST, PUT and DELETE need a READ_WRITE key.
 7. RateLimit counts requests per client in a fixed window and sets the
    X-RateLimit-* headers, rejecting with 429 once the window is spent.
 8. Idempotency requires X-Idempotency-Key on registered routes, replays
    stored responses and stores 2xx responses after the handler runs.
 9. TimeoutMiddleware bounds the handler context.

Filter rejections are plain text bodies. Handler errors are JSON.

# Request state

Filters hand state down through the request context:
  - GetRequestID: the request UUID
  - CurrentAPIKeyOwner, CurrentAPIKey: the authenticated key
  - RateLimitFromContext: the outcome of the rate limit check
  - IdempotentContextFrom: the cache key and TTL of an idempotent request

AddLogField and AddError attach fields to the request log line from
anywhere below LoggingMiddleware.
*/
package middleware
