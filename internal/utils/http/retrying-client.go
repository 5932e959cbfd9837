package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

//NewRetryingClient Wraps given client and retries connection errors, HTTP 429 and 5xx responses. Waits
//as long as the Retry-After header asks for when present.
func NewRetryingClient(httpClient *http.Client, retryMax int, requestLogger func(format string, args ...interface{})) *http.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.Logger = debugLogger{inner: requestLogger}

	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 30 * time.Second
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, nil
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if resp != nil {
			if s := resp.Header.Get("Retry-After"); s != "" {
				if seconds, err := strconv.Atoi(s); err == nil {
					return time.Duration(seconds) * time.Second
				}
				if retryAfter, err := time.Parse(time.RFC1123, s); err == nil {
					// the header is rounded to whole seconds
					if d := time.Until(retryAfter.Add(750 * time.Millisecond)); d > 0 {
						return d
					}
					return 0
				}
			}
		}
		return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	}

	return client.StandardClient()
}

type debugLogger struct {
	inner func(format string, args ...interface{})
}

func (l debugLogger) Printf(format string, args ...interface{}) {
	// Fix weird format of inner logging...
	format = strings.ReplaceAll(format, "[DEBUG] ", "")
	format = strings.ReplaceAll(format, "%s", "%v")
	l.inner(format, args...)
}
