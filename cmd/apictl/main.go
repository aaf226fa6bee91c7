// Command apictl sends one authenticated request to the API and prints the
// response data.
//
//	apictl -login demo:demo -path /v1/me
//	apictl -method POST -path /v1/projects -data '{"name":"bridge"}'
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/buildwise/apiclient/v3"
	"github.com/buildwise/apiclient/v3/internal/config"
	"github.com/buildwise/apiclient/v3/internal/observability"
	"github.com/buildwise/apiclient/v3/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type loginData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("apictl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML config file")
	method := fs.String("method", http.MethodGet, "HTTP method")
	path := fs.String("path", "", "request path relative to the base URL")
	data := fs.String("data", "", "JSON request body")
	login := fs.String("login", "", "log in first with user:password")
	logout := fs.Bool("logout", false, "discard the stored session and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	clientLogger := apiclient.NewZapLogger(logger.Sugar())

	store, closeStore, err := openStore(cfg.Session)
	if err != nil {
		logger.Error("failed to open session store", zap.Error(err))
		return 1
	}
	defer closeStore()

	mgr, err := session.NewManager(store,
		session.WithLogger(clientLogger),
		session.WithOnSignedOut(func() {
			fmt.Fprintln(stderr, "session expired, log in again with -login")
		}),
	)
	if err != nil {
		logger.Error("failed to create session manager", zap.Error(err))
		return 1
	}

	client, err := newClient(cfg.API, clientLogger, mgr)
	if err != nil {
		logger.Error("failed to create client", zap.Error(err))
		return 1
	}

	if *logout {
		if err := mgr.Logout(ctx, client); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	if *login != "" {
		if err := doLogin(ctx, client, mgr, *login); err != nil {
			fmt.Fprintln(stderr, apiclient.ErrorMessage(err))
			return 1
		}
	} else if err := mgr.Restore(ctx, client); err != nil && !errors.Is(err, session.ErrNoSession) {
		logger.Warn("failed to restore session", zap.Error(err))
	}

	if *path == "" {
		if *login != "" {
			return 0
		}
		fmt.Fprintln(stderr, "-path is required")
		return 2
	}

	req := &apiclient.Request{Method: strings.ToUpper(*method), Path: *path}
	if *data != "" {
		if !json.Valid([]byte(*data)) {
			fmt.Fprintln(stderr, "-data must be valid JSON")
			return 2
		}
		req.Body = json.RawMessage(*data)
	}

	resp, err := client.Send(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, apiclient.ErrorMessage(err))
		return 1
	}

	var out json.RawMessage
	if err := resp.Decode(&out); err != nil {
		fmt.Fprintln(stderr, apiclient.ErrorMessage(err))
		return 1
	}
	if len(out) == 0 {
		return 0
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(out)
	}
	fmt.Fprintln(stdout, pretty.String())
	return 0
}

func newClient(c config.APIConfig, logger apiclient.Logger, mgr *session.Manager) (*apiclient.Client, error) {
	opts := []apiclient.Option{
		apiclient.WithBaseURL(c.BaseURL),
		apiclient.WithMaxRetries(c.MaxRetries),
		apiclient.WithRetryDelay(c.RetryDelay),
		apiclient.WithRefreshPath(c.RefreshPath),
		apiclient.WithUserAgent(c.UserAgent),
		apiclient.WithLogger(logger),
		apiclient.WithSessionListener(mgr),
	}
	if c.RefreshTimeout > 0 {
		opts = append(opts, apiclient.WithRefreshTimeout(c.RefreshTimeout))
	}
	if c.ProactiveRefresh > 0 {
		opts = append(opts, apiclient.WithProactiveRefresh(c.ProactiveRefresh))
	}
	if c.RateLimit > 0 {
		opts = append(opts, apiclient.WithRateLimiter(rate.NewLimiter(rate.Limit(c.RateLimit), c.RateBurst)))
	}
	return apiclient.New(opts...)
}

func openStore(c config.SessionConfig) (session.Store, func(), error) {
	if c.Store != "redis" {
		return session.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{c.RedisAddr}})
	opts := []session.RedisOption{session.WithKeyPrefix(c.KeyPrefix)}
	if c.TTL > 0 {
		opts = append(opts, session.WithTTL(c.TTL))
	}
	store, err := session.NewRedisStore(rdb, c.Tenant, opts...)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return store, func() { _ = rdb.Close() }, nil
}

func doLogin(ctx context.Context, client *apiclient.Client, mgr *session.Manager, credentials string) error {
	username, password, ok := strings.Cut(credentials, ":")
	if !ok || username == "" {
		return errors.New("-login must be user:password")
	}

	resp, err := client.Send(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      map[string]string{"username": username, "password": password},
		Anonymous: true,
	})
	if err != nil {
		return err
	}

	var data loginData
	if err := resp.Decode(&data); err != nil {
		return err
	}

	rec := session.Record{AccessToken: data.AccessToken, RefreshToken: data.RefreshToken}
	if data.ExpiresIn > 0 {
		rec.ExpiresAt = time.Now().Add(time.Duration(data.ExpiresIn) * time.Second)
	}
	return mgr.Login(ctx, client, rec)
}
