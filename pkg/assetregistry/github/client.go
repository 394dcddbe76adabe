// Package github implements assetregistry.ContentHost on the GitHub REST
// contents API. Every update and delete carries the current blob SHA, so a
// concurrent change upstream surfaces as a 409/422 instead of being overwritten.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/jellydator/ttlcache/v3"
	"github.com/tendant/asset-registry/pkg/assetregistry"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultCacheTTL = 60 * time.Second
)

// Config for the GitHub client
type Config struct {
	Token string
	// BaseURL overrides https://api.github.com/ (GitHub Enterprise, tests).
	BaseURL        string
	Timeout        time.Duration
	CacheTTL       time.Duration
	CommitterName  string
	CommitterEmail string
	Logger         *slog.Logger
}

// Client talks to the GitHub contents API
type Client struct {
	gh        *gh.Client
	cache     *ttlcache.Cache[string, assetregistry.RepositoryInfo]
	committer *gh.CommitAuthor
	logger    *slog.Logger
}

var _ assetregistry.ContentHost = (*Client)(nil)

// New creates a client. Call Close to stop the metadata cache.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := gh.NewClient(&http.Client{Timeout: cfg.Timeout})
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}

	cache := ttlcache.New[string, assetregistry.RepositoryInfo](
		ttlcache.WithTTL[string, assetregistry.RepositoryInfo](cfg.CacheTTL),
		ttlcache.WithDisableTouchOnHit[string, assetregistry.RepositoryInfo](),
	)
	go cache.Start()

	c := &Client{
		gh:     client,
		cache:  cache,
		logger: logger.With("component", "github"),
	}
	if cfg.CommitterName != "" && cfg.CommitterEmail != "" {
		c.committer = &gh.CommitAuthor{
			Name:  gh.String(cfg.CommitterName),
			Email: gh.String(cfg.CommitterEmail),
		}
	}
	return c, nil
}

// Close stops the cache janitor.
func (c *Client) Close() {
	c.cache.Stop()
}

// GetRepositoryInfo returns the default branch and whether the repository has
// any commits. Non-empty results are cached.
func (c *Client) GetRepositoryInfo(ctx context.Context, owner, repo string) (*assetregistry.RepositoryInfo, error) {
	key := owner + "/" + repo
	if item := c.cache.Get(key); item != nil {
		info := item.Value()
		return &info, nil
	}

	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if statusOf(resp, err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", assetregistry.ErrRepositoryNotFound, key)
		}
		return nil, upstreamError("get repository", resp, err)
	}

	info := assetregistry.RepositoryInfo{
		Owner:         owner,
		Name:          repo,
		DefaultBranch: r.GetDefaultBranch(),
	}

	// GitHub answers 409 on the commit listing of a repository without commits
	_, resp, err = c.gh.Repositories.ListCommits(ctx, owner, repo, &gh.CommitsListOptions{
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		if statusOf(resp, err) != http.StatusConflict {
			return nil, upstreamError("list commits", resp, err)
		}
		info.IsEmpty = true
	}

	if !info.IsEmpty {
		c.cache.Set(key, info, ttlcache.DefaultTTL)
	}
	return &info, nil
}

// ResolveBranch returns requested when it exists upstream, otherwise the
// default branch.
func (c *Client) ResolveBranch(ctx context.Context, owner, repo, requested string) (string, error) {
	info, err := c.GetRepositoryInfo(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == info.DefaultBranch {
		return info.DefaultBranch, nil
	}

	_, resp, err := c.gh.Repositories.GetBranch(ctx, owner, repo, requested, 1)
	if err == nil {
		return requested, nil
	}
	if statusOf(resp, err) == http.StatusNotFound {
		c.logger.Info("Branch not found, using default", "repo", owner+"/"+repo, "requested", requested, "default", info.DefaultBranch)
		return info.DefaultBranch, nil
	}
	return "", upstreamError("get branch", resp, err)
}

// UploadContent creates the file, or updates it with its current blob SHA.
func (c *Client) UploadContent(ctx context.Context, params assetregistry.UploadParams) (*assetregistry.UploadResult, error) {
	info, err := c.GetRepositoryInfo(ctx, params.Owner, params.Repo)
	if err != nil {
		return nil, err
	}
	if info.IsEmpty {
		return nil, fmt.Errorf("%w: %s/%s", assetregistry.ErrEmptyRepository, params.Owner, params.Repo)
	}
	branch, err := c.ResolveBranch(ctx, params.Owner, params.Repo, params.Branch)
	if err != nil {
		return nil, err
	}

	sha, err := c.currentSHA(ctx, params.Owner, params.Repo, branch, params.Path)
	if err != nil {
		return nil, err
	}

	opts := &gh.RepositoryContentFileOptions{
		Message:   gh.String(params.Message),
		Content:   params.Content,
		Branch:    gh.String(branch),
		Committer: c.committer,
	}

	var res *gh.RepositoryContentResponse
	var resp *gh.Response
	if sha == "" {
		res, resp, err = c.gh.Repositories.CreateFile(ctx, params.Owner, params.Repo, params.Path, opts)
	} else {
		opts.SHA = gh.String(sha)
		res, resp, err = c.gh.Repositories.UpdateFile(ctx, params.Owner, params.Repo, params.Path, opts)
	}
	if err != nil {
		return nil, upstreamError("upload content", resp, err)
	}

	result := &assetregistry.UploadResult{
		Branch:    branch,
		Path:      params.Path,
		CommitSHA: res.Commit.GetSHA(),
		Created:   sha == "",
	}
	if res.Content != nil {
		result.URL = res.Content.GetHTMLURL()
		result.SHA = res.Content.GetSHA()
		if p := res.Content.GetPath(); p != "" {
			result.Path = p
		}
	}
	c.logger.Debug("Uploaded content", "repo", params.Owner+"/"+params.Repo, "branch", branch, "path", result.Path, "created", result.Created)
	return result, nil
}

// DeleteContent removes the file using its current blob SHA.
func (c *Client) DeleteContent(ctx context.Context, params assetregistry.DeleteParams) (*assetregistry.DeleteResult, error) {
	info, err := c.GetRepositoryInfo(ctx, params.Owner, params.Repo)
	if err != nil {
		return nil, err
	}
	if info.IsEmpty {
		return nil, fmt.Errorf("%w: %s", assetregistry.ErrFileNotFound, params.Path)
	}
	branch, err := c.ResolveBranch(ctx, params.Owner, params.Repo, params.Branch)
	if err != nil {
		return nil, err
	}

	sha, err := c.currentSHA(ctx, params.Owner, params.Repo, branch, params.Path)
	if err != nil {
		return nil, err
	}
	if sha == "" {
		return nil, fmt.Errorf("%w: %s@%s", assetregistry.ErrFileNotFound, params.Path, branch)
	}

	res, resp, err := c.gh.Repositories.DeleteFile(ctx, params.Owner, params.Repo, params.Path, &gh.RepositoryContentFileOptions{
		Message:   gh.String(params.Message),
		SHA:       gh.String(sha),
		Branch:    gh.String(branch),
		Committer: c.committer,
	})
	if err != nil {
		return nil, upstreamError("delete content", resp, err)
	}

	return &assetregistry.DeleteResult{
		Path:      params.Path,
		Branch:    branch,
		CommitSHA: res.Commit.GetSHA(),
	}, nil
}

// currentSHA returns the blob SHA at path on branch, or "" when absent.
func (c *Client) currentSHA(ctx context.Context, owner, repo, branch, path string) (string, error) {
	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &gh.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if statusOf(resp, err) == http.StatusNotFound {
			return "", nil
		}
		return "", upstreamError("get content", resp, err)
	}
	if file == nil && dir != nil {
		v := assetregistry.NewValidationError()
		v.Add("repo_path", "points to a directory")
		return "", v
	}
	return file.GetSHA(), nil
}

func statusOf(resp *gh.Response, err error) int {
	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode
	}
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	return 0
}

// upstreamError converts a go-github failure. Timeouts are marked retryable.
func upstreamError(op string, resp *gh.Response, err error) error {
	ue := &assetregistry.UpstreamError{Op: op, Err: err}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		ue.Retryable = true
		ue.Message = "timeout"
		return ue
	}

	ue.StatusCode = statusOf(resp, err)
	var er *gh.ErrorResponse
	var rl *gh.RateLimitError
	switch {
	case errors.As(err, &er):
		ue.Message = er.Message
	case errors.As(err, &rl):
		ue.Message = rl.Message
	case ue.StatusCode > 0:
		ue.Message = http.StatusText(ue.StatusCode)
	}
	return ue
}
