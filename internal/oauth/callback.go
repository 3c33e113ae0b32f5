package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/clierr"
)

// DefaultCallbackTimeout bounds how long a flow waits for the browser
// redirect before giving up and releasing the listener.
const DefaultCallbackTimeout = 5 * time.Minute

// CallbackResult is the outcome of one authorization redirect. Either Code
// is set, or Err carries the provider-reported failure.
type CallbackResult struct {
	Code  string
	State string
	Err   error
}

// CallbackServer is a single-flow localhost listener for the OAuth
// redirect. Each authorization flow owns its own instance; Close releases
// the port whether or not a callback arrived.
type CallbackServer struct {
	port     int
	listener net.Listener
	server   *http.Server
	results  chan CallbackResult
	logger   *zap.Logger

	closeOnce sync.Once
}

// StartCallbackServer binds the first port from ports that accepts a
// listener and serves the redirect endpoint on it. Port 0 asks the OS for
// a free port, so a list ending in 0 cannot fail on port exhaustion alone.
func StartCallbackServer(ports []int, logger *zap.Logger) (*CallbackServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(ports) == 0 {
		ports = []int{0}
	}

	var failures []string
	for _, port := range ports {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			failures = append(failures, fmt.Sprintf("port %d: %v", port, err))
			logger.Debug("callback port unavailable", zap.Int("port", port), zap.Error(err))
			continue
		}
		return serveCallbacks(listener, logger), nil
	}

	return nil, clierr.New(clierr.OAuthFlowError, "no OAuth callback port could be bound").
		WithDetails("%s", strings.Join(failures, "; ")).
		WithSuggestion("free one of the configured callback ports, or set oauth.callbackPorts to [0] to let the OS choose")
}

// serveCallbacks wraps an already-bound listener in the callback HTTP
// server and starts serving.
func serveCallbacks(listener net.Listener, logger *zap.Logger) *CallbackServer {
	port := listener.Addr().(*net.TCPAddr).Port

	cs := &CallbackServer{
		port:     port,
		listener: listener,
		results:  make(chan CallbackResult, 1),
		logger:   logger.With(zap.Int("port", port)),
	}

	router := chi.NewRouter()
	router.Get("/callback", cs.handleCallback)
	router.Get("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	cs.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := cs.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			cs.logger.Error("callback server error", zap.Error(err))
		}
	}()

	cs.logger.Debug("callback listener started", zap.String("redirect_url", cs.RedirectURL()))
	return cs
}

// Port returns the effective bound port.
func (c *CallbackServer) Port() int {
	return c.port
}

// RedirectURL returns the redirect URL for the effective port. Port 80 is
// the HTTP default and is elided.
func (c *CallbackServer) RedirectURL() string {
	return redirectURLFor(c.port)
}

func redirectURLFor(port int) string {
	if port == 80 {
		return "http://localhost/callback"
	}
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// handleCallback resolves the pending flow from the query parameters. Only
// the first resolution counts; a stray second hit still gets a page.
func (c *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		desc := query.Get("error_description")
		c.logger.Warn("authorization rejected by provider",
			zap.String("error", errCode),
			zap.String("description", desc))

		msg := errCode
		if desc != "" {
			msg = fmt.Sprintf("%s: %s", errCode, desc)
		}
		c.deliver(CallbackResult{Err: clierr.New(clierr.OAuthFlowError, "authorization failed: %s", msg).
			WithSuggestion("re-run the command to restart the authorization flow")})

		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, errorPage, msg)
		return
	}

	code := query.Get("code")
	if code == "" {
		c.logger.Warn("callback request without code or error")
		http.Error(w, "missing code parameter", http.StatusBadRequest)
		return
	}

	c.deliver(CallbackResult{Code: code, State: query.Get("state")})

	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(successPage)); err != nil {
		c.logger.Error("error writing callback response", zap.Error(err))
	}
}

// deliver hands the result to the waiting flow. The channel is buffered
// with capacity one, so later deliveries are dropped.
func (c *CallbackServer) deliver(res CallbackResult) {
	select {
	case c.results <- res:
	default:
		c.logger.Debug("duplicate callback dropped")
	}
}

// Wait blocks until the redirect arrives, the timeout elapses, or ctx is
// cancelled. A non-positive timeout selects DefaultCallbackTimeout.
func (c *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (CallbackResult, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-c.results:
		if res.Err != nil {
			return res, res.Err
		}
		return res, nil
	case <-timer.C:
		return CallbackResult{}, clierr.New(clierr.OAuthFlowError, "timed out after %s waiting for the OAuth callback", timeout).
			WithSuggestion("complete the authorization in your browser, then re-run the command")
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// Close shuts the listener down. Safe to call more than once and after a
// callback has already resolved.
func (c *CallbackServer) Close() {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.server.Shutdown(ctx); err != nil {
			c.logger.Debug("callback server shutdown", zap.Error(err))
		}
	})
}

const successPage = `<html>
	<body>
		<h1>Authorization Successful</h1>
		<p>You can now close this window and return to the terminal.</p>
		<script>
			setTimeout(function() {
				window.close();
			}, 2000);
		</script>
	</body>
</html>`

const errorPage = `<html>
	<body>
		<h1>Authorization Failed</h1>
		<p>%s</p>
		<p>Return to the terminal and retry the command.</p>
	</body>
</html>`
