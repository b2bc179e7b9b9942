package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v66/github"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/robalyx/rolesync/internal/github/rate"
	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/robalyx/rolesync/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	perPage             = 100
	headerRateRemaining = "X-RateLimit-Remaining"
	headerETag          = "ETag"
	headerIfNoneMatch   = "If-None-Match"
)

// Result is the outcome of a membership fetch.
// Logins is nil when NotModified is set and the caller must reuse its cached set.
// ETag is a validator covering every page; it is empty when a page carried no ETag.
type Result struct {
	Logins      types.LoginSet
	NotModified bool
	ETag        string
}

// cacheEntry holds the last full membership returned for an endpoint.
type cacheEntry struct {
	etag   string
	logins types.LoginSet
}

// result answers a request from the cache, honoring the caller's validator.
func (c *cacheEntry) result(etag string) *Result {
	if etag != "" && etag == c.etag {
		return &Result{NotModified: true, ETag: c.etag}
	}

	return &Result{Logins: c.logins.Clone(), ETag: c.etag}
}

// page is one decoded response page.
type page struct {
	logins      []string
	etag        string
	nextPage    int
	notModified bool
}

// Fetcher retrieves contributor and stargazer logins from the GitHub REST API.
// Every call shares one rate limiter, one response cache and one in-flight group.
type Fetcher struct {
	client         *github.Client
	limiter        *rate.Limiter
	cache          *utils.TTLMap[string, *cacheEntry]
	group          singleflight.Group
	sleep          utils.SleepFunc
	maxRetries     int
	requestTimeout time.Duration
	logger         *zap.Logger
}

type options struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      utils.SleepFunc
}

// Option configures a Fetcher.
type Option func(*options)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLimiter replaces the shared rate limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(o *options) {
		o.limiter = limiter
	}
}

// WithSleep replaces the function used to wait between retries.
func WithSleep(sleep utils.SleepFunc) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// New creates a Fetcher from the GitHub configuration.
func New(cfg *config.GitHub, requestTimeout time.Duration, logger *zap.Logger, opts ...Option) (*Fetcher, error) {
	o := &options{sleep: utils.Sleep}
	for _, opt := range opts {
		opt(o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		if cfg.Token != "" {
			httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
				&oauth2.Token{AccessToken: cfg.Token},
			))
		} else {
			httpClient = &http.Client{}
		}
	}

	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}

		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url %q: %w", cfg.BaseURL, err)
		}

		client.BaseURL = parsed
	}

	limiter := o.limiter
	if limiter == nil {
		limiter = rate.New(cfg.RequestsPerMinute,
			rate.WithJitter(250*time.Millisecond),
			rate.WithResetBuffer(time.Duration(cfg.RateLimitBuffer)*time.Second),
		)
	}

	return &Fetcher{
		client:         client,
		limiter:        limiter,
		cache:          utils.NewBoundedTTLMap[string, *cacheEntry](time.Duration(cfg.CacheTTL)*time.Minute, cfg.CacheSize),
		sleep:          o.sleep,
		maxRetries:     cfg.MaxRetries,
		requestTimeout: requestTimeout,
		logger:         logger.Named("github_fetcher"),
	}, nil
}

// FetchContributors returns the contributor logins of owner/name.
// A non-empty etag, as returned in an earlier Result, makes the request conditional.
func (f *Fetcher) FetchContributors(ctx context.Context, owner, name, etag string) (*Result, error) {
	return f.fetch(ctx, enum.RoleKindContributor, owner, name, etag)
}

// FetchStargazers returns the stargazer logins of owner/name.
// A non-empty etag, as returned in an earlier Result, makes the request conditional.
func (f *Fetcher) FetchStargazers(ctx context.Context, owner, name, etag string) (*Result, error) {
	return f.fetch(ctx, enum.RoleKindStargazer, owner, name, etag)
}

// Quota returns the latest known request quota.
func (f *Fetcher) Quota() rate.Quota {
	return f.limiter.Quota()
}

// Close stops the response cache cleanup.
func (f *Fetcher) Close() {
	f.cache.Close()
}

func (f *Fetcher) fetch(ctx context.Context, kind enum.RoleKind, owner, name, etag string) (*Result, error) {
	path := endpoint(kind, owner, name)

	if entry, ok := f.cache.Get(path); ok {
		return entry.result(etag), nil
	}

	v, err, shared := f.group.Do(path+"|"+etag, func() (any, error) {
		if entry, ok := f.cache.Get(path); ok {
			return entry.result(etag), nil
		}

		result, err := f.fetchAll(ctx, kind, path, etag)
		if err != nil {
			return nil, err
		}

		if !result.NotModified {
			f.cache.Set(path, &cacheEntry{etag: result.ETag, logins: result.Logins.Clone()})
		}

		return result, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s of %s/%s: %w", kind.String(), owner, name, err)
	}

	result := v.(*Result)
	if shared {
		return &Result{Logins: result.Logins.Clone(), NotModified: result.NotModified, ETag: result.ETag}, nil
	}

	return result, nil
}

// fetchAll returns NotModified when every page of the validator is unchanged,
// and otherwise reads the whole list again.
func (f *Fetcher) fetchAll(ctx context.Context, kind enum.RoleKind, path, etag string) (*Result, error) {
	if etag != "" {
		unchanged, err := f.revalidate(ctx, kind, path, splitValidator(etag))
		if err != nil {
			return nil, err
		}

		if unchanged {
			return &Result{NotModified: true, ETag: etag}, nil
		}
	}

	return f.fetchPages(ctx, kind, path)
}

// revalidate sends each page its own ETag. The page after the last known one is
// requested as well, since a full last page keeps its ETag when a new page appears.
func (f *Fetcher) revalidate(ctx context.Context, kind enum.RoleKind, path string, etags []string) (bool, error) {
	for i, etag := range etags {
		p, err := f.fetchPage(ctx, kind, path, i+1, etag)
		if err != nil {
			return false, err
		}

		if !p.notModified {
			return false, nil
		}
	}

	p, err := f.fetchPage(ctx, kind, path, len(etags)+1, "")
	if err != nil {
		return false, err
	}

	return len(p.logins) == 0, nil
}

// fetchPages follows every page of the endpoint and merges the logins.
func (f *Fetcher) fetchPages(ctx context.Context, kind enum.RoleKind, path string) (*Result, error) {
	logins := types.NewLoginSet()

	var etags []string
	for pageNum := 1; pageNum != 0; {
		p, err := f.fetchPage(ctx, kind, path, pageNum, "")
		if err != nil {
			return nil, err
		}

		etags = append(etags, p.etag)
		for _, login := range p.logins {
			logins.Add(login)
		}

		pageNum = p.nextPage
	}

	f.logger.Debug("Fetched membership",
		zap.String("endpoint", path),
		zap.Int("pages", len(etags)),
		zap.Int("logins", logins.Len()))

	return &Result{Logins: logins, ETag: joinValidator(etags)}, nil
}

// fetchPage requests one page, retrying rate limits and transient failures up to maxRetries times.
func (f *Fetcher) fetchPage(ctx context.Context, kind enum.RoleKind, path string, pageNum int, etag string) (*page, error) {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(60*time.Second),
		backoff.WithRandomizationFactor(0.5),
		backoff.WithMaxElapsedTime(0),
	)

	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		p, resp, err := f.doRequest(ctx, kind, path, pageNum, etag)
		f.updateQuota(resp)

		if err == nil {
			return p, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		apiErr := classifyError(resp, err)
		if !apiErr.Retryable() {
			return nil, apiErr
		}

		if attempt >= f.maxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, apiErr)
		}

		var wait time.Duration
		switch {
		case apiErr.RetryAfter > 0:
			f.limiter.BlockFor(apiErr.RetryAfter)
		case !apiErr.ResetAt.IsZero():
			// go-github refuses to send anything before the reset, so the wait must pass it
			f.limiter.Update(f.limiter.Quota().Limit, 0, apiErr.ResetAt)
		default:
			wait = bo.NextBackOff()
		}

		f.logger.Warn("GitHub request failed, retrying",
			zap.String("endpoint", path),
			zap.Int("page", pageNum),
			zap.Int("attempt", attempt+1),
			zap.String("kind", string(apiErr.Kind)),
			zap.Int("status", apiErr.StatusCode),
			zap.Bool("timeout", isAttemptTimeout(ctx, err)),
			zap.Duration("backoff", wait),
			zap.Error(err))

		if wait > 0 {
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
}

// doRequest sends a single bounded request for one page.
func (f *Fetcher) doRequest(
	ctx context.Context, kind enum.RoleKind, path string, pageNum int, etag string,
) (*page, *github.Response, error) {
	reqCtx := ctx
	if f.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		defer cancel()
	}

	req, err := f.client.NewRequest(http.MethodGet, fmt.Sprintf("%s?per_page=%d&page=%d", path, perPage, pageNum), nil)
	if err != nil {
		return nil, nil, err
	}

	if etag != "" {
		req.Header.Set(headerIfNoneMatch, etag)
	}

	var (
		logins []string
		resp   *github.Response
	)

	switch kind {
	case enum.RoleKindContributor:
		var contributors []*github.Contributor
		resp, err = f.client.Do(reqCtx, req, &contributors)
		for _, contributor := range contributors {
			logins = append(logins, contributor.GetLogin())
		}
	case enum.RoleKindStargazer:
		var users []*github.User
		resp, err = f.client.Do(reqCtx, req, &users)
		for _, user := range users {
			logins = append(logins, user.GetLogin())
		}
	default:
		return nil, nil, fmt.Errorf("%w: %s", errUnsupportedKind, kind.String())
	}

	if resp != nil && resp.StatusCode == http.StatusNotModified {
		return &page{notModified: true}, resp, nil
	}

	if err != nil {
		return nil, resp, err
	}

	return &page{
		logins:   logins,
		etag:     resp.Header.Get(headerETag),
		nextPage: resp.NextPage,
	}, resp, nil
}

// updateQuota feeds the response rate headers into the shared limiter.
func (f *Fetcher) updateQuota(resp *github.Response) {
	if resp == nil || resp.Response == nil || resp.Header.Get(headerRateRemaining) == "" {
		return
	}

	f.limiter.Update(resp.Rate.Limit, resp.Rate.Remaining, resp.Rate.Reset.Time)
}

var errUnsupportedKind = errors.New("unsupported role kind")

// joinValidator combines page ETags in page order. ETags never contain spaces.
func joinValidator(etags []string) string {
	for _, etag := range etags {
		if etag == "" {
			return ""
		}
	}

	return strings.Join(etags, " ")
}

func splitValidator(validator string) []string {
	return strings.Fields(validator)
}

// endpoint returns the API path for a membership kind.
func endpoint(kind enum.RoleKind, owner, name string) string {
	resource := "contributors"
	if kind == enum.RoleKindStargazer {
		resource = "stargazers"
	}

	return fmt.Sprintf("repos/%s/%s/%s", url.PathEscape(owner), url.PathEscape(name), resource)
}
