// Package urlstrategy maps stored assets to externally fetchable URLs.
package urlstrategy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tendant/asset-registry/pkg/assetregistry"
)

const (
	// DefaultCDNTemplate serves GitHub files through jsDelivr.
	DefaultCDNTemplate = "https://cdn.jsdelivr.net/gh/{owner}/{repo}@{branch}/{path}"

	// DefaultBlobBaseURL is the web host of github.com repositories.
	DefaultBlobBaseURL = "https://github.com"
)

// Config holds configuration for resolver creation
type Config struct {
	// CDNTemplate must contain {owner}, {repo} and {path}. {branch} is optional.
	CDNTemplate string
	BlobBaseURL string
	// DiskBaseURLs optionally prefixes relative paths of local and s3 assets,
	// e.g. {"s3": "https://bucket.s3.amazonaws.com"}.
	DiskBaseURLs map[assetregistry.Disk]string
}

// Resolver implements assetregistry.URLResolver
type Resolver struct {
	cdnTemplate  string
	blobBaseURL  string
	diskBaseURLs map[assetregistry.Disk]string
}

var _ assetregistry.URLResolver = (*Resolver)(nil)

// New creates a resolver, filling defaults for empty settings.
func New(config Config) (*Resolver, error) {
	tmpl := config.CDNTemplate
	if tmpl == "" {
		tmpl = DefaultCDNTemplate
	}
	for _, placeholder := range []string{"{owner}", "{repo}", "{path}"} {
		if !strings.Contains(tmpl, placeholder) {
			return nil, fmt.Errorf("CDN template %q is missing %s", tmpl, placeholder)
		}
	}

	blob := strings.TrimSuffix(config.BlobBaseURL, "/")
	if blob == "" {
		blob = DefaultBlobBaseURL
	}

	bases := make(map[assetregistry.Disk]string, len(config.DiskBaseURLs))
	for disk, base := range config.DiskBaseURLs {
		if base = strings.TrimSuffix(strings.TrimSpace(base), "/"); base != "" {
			bases[disk] = base
		}
	}

	return &Resolver{cdnTemplate: tmpl, blobBaseURL: blob, diskBaseURLs: bases}, nil
}

// NewDefault returns a resolver with the jsDelivr template.
func NewDefault() *Resolver {
	r, _ := New(Config{})
	return r
}

// PublicURL resolves an asset. GitHub assets go through the CDN template,
// remote assets are returned verbatim and other disks pass through.
func (r *Resolver) PublicURL(asset *assetregistry.Asset) string {
	if asset == nil {
		return ""
	}
	switch asset.Disk {
	case assetregistry.DiskGitHub:
		owner, repo, ok := assetregistry.SplitRepo(assetregistry.Deref(asset.Repo))
		if !ok {
			return asset.Path
		}
		return r.CDNURL(owner, repo, assetregistry.Deref(asset.Branch), asset.Path)
	case assetregistry.DiskRemote:
		return asset.Path
	}

	base, ok := r.diskBaseURLs[asset.Disk]
	if !ok || isAbsoluteURL(asset.Path) {
		return asset.Path
	}
	return base + "/" + escapePath(strings.TrimLeft(asset.Path, "/"))
}

// CDNURL expands the CDN template.
func (r *Resolver) CDNURL(owner, repo, branch, path string) string {
	return strings.NewReplacer(
		"{owner}", url.PathEscape(owner),
		"{repo}", url.PathEscape(repo),
		"{branch}", escapePath(branch),
		"{path}", escapePath(strings.TrimLeft(path, "/")),
	).Replace(r.cdnTemplate)
}

// BlobURL returns the repository web link of a file.
func (r *Resolver) BlobURL(owner, repo, branch, path string) string {
	return fmt.Sprintf("%s/%s/%s/blob/%s/%s", r.blobBaseURL,
		url.PathEscape(owner), url.PathEscape(repo), escapePath(branch),
		escapePath(strings.TrimLeft(path, "/")))
}

// escapePath escapes each segment and keeps the slashes.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func isAbsoluteURL(p string) bool {
	u, err := url.Parse(p)
	return err == nil && u.Scheme != "" && u.Host != ""
}
