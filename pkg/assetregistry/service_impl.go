package assetregistry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository   Repository
	host         ContentHost
	resolver     URLResolver
	logger       *slog.Logger
	policy       Policy
	defaultOwner string
	defaultRepo  string
	now          func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the asset store for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithContentHost sets the GitHub client used by the upload flow
func WithContentHost(host ContentHost) Option {
	return func(s *service) {
		s.host = host
	}
}

// WithResolver sets the public URL resolver
func WithResolver(resolver URLResolver) Option {
	return func(s *service) {
		s.resolver = resolver
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPolicy sets the extension and host allow-lists
func WithPolicy(policy Policy) Option {
	return func(s *service) {
		s.policy = policy
	}
}

// WithDefaults sets the owner and repository used when an upload names none
func WithDefaults(owner, repo string) Option {
	return func(s *service) {
		s.defaultOwner = owner
		s.defaultRepo = repo
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("url resolver is required")
	}

	return s, nil
}

// Creation flows

func (s *service) Register(ctx context.Context, req RegisterRequest) (*AssetView, error) {
	req.Label = strings.TrimSpace(req.Label)
	req.Path = strings.TrimSpace(req.Path)
	req.SHA256 = strings.ToLower(strings.TrimSpace(req.SHA256))
	if err := validateRegister(req); err != nil {
		return nil, err
	}

	slug := deriveSlug(req.Slug, req.Label)
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = FilenameFromPath(req.Disk, req.Path)
	}
	if filename == "" {
		filename = slug + ".bin"
	}
	if err := s.policy.CheckExtension(filename); err != nil {
		return nil, err
	}
	if req.Disk == DiskRemote {
		if err := s.policy.CheckRemote(req.Path); err != nil {
			return nil, err
		}
	}

	mimeType := strings.TrimSpace(req.Mime)
	if mimeType == "" {
		mimeType = GuessMime(filename)
	}

	asset := &Asset{
		ID:          uuid.NewString(),
		Label:       req.Label,
		Slug:        slug,
		Filename:    filename,
		Disk:        req.Disk,
		Path:        req.Path,
		Mime:        StringPtr(mimeType),
		Size:        req.Size,
		SHA256:      StringPtr(req.SHA256),
		VerifyHash:  req.VerifyHash,
		Disposition: defaultDisposition(req.Disposition),
		Visibility:  defaultVisibility(req.Visibility),
		CreatedAt:   s.now().UTC(),
	}

	if req.Disk == DiskGitHub {
		owner, name, _ := SplitRepo(req.Repo)
		branch := strings.TrimSpace(req.Branch)
		if branch == "" {
			if s.host == nil {
				v := NewValidationError()
				v.Add("branch", "is required when no github client is configured")
				return nil, v
			}
			resolved, err := s.host.ResolveBranch(ctx, owner, name, "")
			if err != nil {
				return nil, err
			}
			branch = resolved
		}
		asset.Repo = StringPtr(owner + "/" + name)
		asset.Branch = StringPtr(branch)
		asset.GitHubURL = StringPtr(s.resolver.BlobURL(owner, name, branch, req.Path))
		asset.CDNURL = StringPtr(s.resolver.CDNURL(owner, name, branch, req.Path))
	}

	if err := s.repository.Insert(ctx, asset); err != nil {
		return nil, &AssetError{AssetID: asset.ID, Op: "register", Err: err}
	}

	s.logger.Info("Registered asset", "id", asset.ID, "slug", asset.Slug, "disk", asset.Disk)
	return s.view(asset), nil
}

func (s *service) UploadToGitHub(ctx context.Context, req UploadRequest) (*AssetView, error) {
	if s.host == nil {
		return nil, fmt.Errorf("github client is not configured")
	}

	v := NewValidationError()
	req.Label = strings.TrimSpace(req.Label)
	validateLabel(v, req.Label)
	if req.File == nil {
		v.Add("file", "is required")
	}
	if req.Disposition != "" && !req.Disposition.IsValid() {
		v.Add("disposition", "must be inline or attachment")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	limit := s.policy.maxUploadBytes()
	data, err := io.ReadAll(io.LimitReader(req.File, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		v.Add("file", fmt.Sprintf("exceeds %d bytes", limit))
		return nil, v
	}
	sum := SHA256Hex(data)

	source := strings.TrimSpace(req.SourceFilename)
	if source == "" {
		source = strings.TrimSpace(req.Filename)
	}
	repoPath := ResolveRepoPath(req.RepoPath, source)
	if repoPath == "" || strings.HasSuffix(repoPath, "/") {
		v.Add("repo_path", "is required when the file has no name")
		return nil, v
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = path.Base(repoPath)
	}
	if err := s.policy.CheckExtension(path.Base(repoPath)); err != nil {
		return nil, err
	}

	slug := deriveSlug(req.Slug, req.Label)
	if taken, err := s.repository.SlugTaken(ctx, slug); err != nil {
		return nil, err
	} else if taken {
		return nil, &AssetError{Op: "upload", Err: ErrSlugConflict}
	}

	owner, repo := s.target(req.Owner, req.Repo)
	if owner == "" || repo == "" {
		v.Add("repo", "owner and repo are required")
		return nil, v
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "Upload " + repoPath
	}
	res, err := s.host.UploadContent(ctx, UploadParams{
		Owner:   owner,
		Repo:    repo,
		Branch:  strings.TrimSpace(req.Branch),
		Path:    repoPath,
		Content: data,
		Message: message,
	})
	if err != nil {
		s.logger.Error("Failed to upload to github", "owner", owner, "repo", repo, "path", repoPath, "err", err)
		return nil, err
	}

	storedPath := res.Path
	if storedPath == "" {
		storedPath = repoPath
	}
	githubURL := res.URL
	if githubURL == "" {
		githubURL = s.resolver.BlobURL(owner, repo, res.Branch, storedPath)
	}
	mimeType := strings.TrimSpace(req.Mime)
	if mimeType == "" {
		mimeType = GuessMime(filename)
	}
	size := int64(len(data))

	asset := &Asset{
		ID:          uuid.NewString(),
		Label:       req.Label,
		Slug:        slug,
		Filename:    filename,
		Disk:        DiskGitHub,
		Path:        storedPath,
		Repo:        StringPtr(owner + "/" + repo),
		Branch:      StringPtr(res.Branch),
		Mime:        StringPtr(mimeType),
		Size:        &size,
		SHA256:      StringPtr(sum),
		VerifyHash:  req.VerifyHash,
		Disposition: defaultDisposition(req.Disposition),
		Visibility:  defaultVisibility(req.Visibility),
		GitHubURL:   StringPtr(githubURL),
		CDNURL:      StringPtr(s.resolver.CDNURL(owner, repo, res.Branch, storedPath)),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repository.Insert(ctx, asset); err != nil {
		s.logger.Warn("Uploaded file but failed to register asset", "path", storedPath, "commit", res.CommitSHA, "err", err)
		return nil, &AssetError{AssetID: asset.ID, Op: "upload", Err: err}
	}

	s.logger.Info("Uploaded asset", "id", asset.ID, "slug", asset.Slug, "repo", owner+"/"+repo, "branch", res.Branch)
	return s.view(asset), nil
}

func (s *service) DeleteFromGitHub(ctx context.Context, req DeleteRemoteRequest) (*DeleteResult, error) {
	if s.host == nil {
		return nil, fmt.Errorf("github client is not configured")
	}
	v := NewValidationError()
	repoPath := strings.TrimLeft(strings.TrimSpace(req.RepoPath), "/")
	if repoPath == "" {
		v.Add("repo_path", "is required")
	}
	owner, repo := s.target(req.Owner, req.Repo)
	if owner == "" || repo == "" {
		v.Add("repo", "owner and repo are required")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "Delete " + repoPath
	}
	res, err := s.host.DeleteContent(ctx, DeleteParams{
		Owner:   owner,
		Repo:    repo,
		Branch:  strings.TrimSpace(req.Branch),
		Path:    repoPath,
		Message: message,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Deleted file from github", "repo", owner+"/"+repo, "path", res.Path, "commit", res.CommitSHA)
	return res, nil
}

// Lookup

func (s *service) GetBySlug(ctx context.Context, slug string) (*AssetView, error) {
	asset, err := s.repository.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return nil, err
	}
	return s.view(asset), nil
}

func (s *service) GetByID(ctx context.Context, id string) (*AssetView, error) {
	asset, err := s.repository.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	return s.view(asset), nil
}

// Lifecycle

func (s *service) Update(ctx context.Context, id string, patch Patch) (*AssetView, error) {
	patch, err := NormalizePatch(patch)
	if err != nil {
		return nil, err
	}
	if patch.Filename != nil {
		if err := s.policy.CheckExtension(*patch.Filename); err != nil {
			return nil, err
		}
	}
	asset, err := s.repository.Update(ctx, id, patch)
	if err != nil {
		return nil, &AssetError{AssetID: id, Op: "update", Err: err}
	}
	return s.view(asset), nil
}

func (s *service) SoftDelete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repository.SoftDelete(ctx, id)
	if err != nil {
		return false, &AssetError{AssetID: id, Op: "delete", Err: err}
	}
	if deleted {
		s.logger.Info("Soft-deleted asset", "id", id)
	}
	return deleted, nil
}

func (s *service) Restore(ctx context.Context, id string) (bool, error) {
	restored, err := s.repository.Restore(ctx, id)
	if err != nil {
		return false, &AssetError{AssetID: id, Op: "restore", Err: err}
	}
	if restored {
		s.logger.Info("Restored asset", "id", id)
	}
	return restored, nil
}

// Listing

func (s *service) ListRecent(ctx context.Context, q RecentQuery) ([]*AssetView, error) {
	filter := Filter{Query: q.Label, Disk: q.Disk, Visibility: q.Visibility}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	items, _, err := s.repository.List(ctx, NormalizeListQuery(ListQuery{
		Filter:  filter,
		SortBy:  SortFieldCreatedAt,
		SortDir: SortDesc,
		Limit:   q.Limit,
	}))
	if err != nil {
		return nil, err
	}
	return s.views(items), nil
}

func (s *service) ListAll(ctx context.Context, filter Filter) ([]*AssetView, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	var all []*AssetView
	for offset := 0; ; offset += MaxListLimit {
		items, total, err := s.repository.List(ctx, NormalizeListQuery(ListQuery{
			Filter:  filter,
			SortBy:  SortFieldCreatedAt,
			SortDir: SortDesc,
			Limit:   MaxListLimit,
			Offset:  offset,
		}))
		if err != nil {
			return nil, err
		}
		all = append(all, s.views(items)...)
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}
	if all == nil {
		all = []*AssetView{}
	}
	return all, nil
}

func (s *service) Search(ctx context.Context, q ListQuery) (*ListResult, error) {
	if err := validateFilter(q.Filter); err != nil {
		return nil, err
	}
	q = NormalizeListQuery(q)
	items, total, err := s.repository.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Items:  s.views(items),
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	}, nil
}

// Helpers

func (s *service) view(a *Asset) *AssetView {
	return &AssetView{Asset: a, PublicURL: s.resolver.PublicURL(a)}
}

func (s *service) views(items []*Asset) []*AssetView {
	out := make([]*AssetView, 0, len(items))
	for _, a := range items {
		out = append(out, s.view(a))
	}
	return out
}

func (s *service) target(owner, repo string) (string, string) {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)
	if owner == "" {
		owner = s.defaultOwner
	}
	if repo == "" {
		repo = s.defaultRepo
	}
	return owner, repo
}

func deriveSlug(supplied, label string) string {
	candidate := strings.TrimSpace(supplied)
	if candidate == "" {
		candidate = label
	}
	if slug := Slugify(candidate); slug != "" {
		return slug
	}
	return RandomSlug()
}

func defaultDisposition(d Disposition) Disposition {
	if d == "" {
		return DispositionInline
	}
	return d
}

func defaultVisibility(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return DefaultVisibility
	}
	return v
}

func validateFilter(f Filter) error {
	if f.Disk != "" && !f.Disk.IsValid() {
		v := NewValidationError()
		v.Add("disk", "must be one of remote, local, s3, github")
		return v
	}
	return nil
}
