package assetregistry

import (
	"mime"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

// DefaultMaxUploadBytes caps an upload when the policy does not set a limit.
const DefaultMaxUploadBytes int64 = 25 << 20

// MaxLabelLength bounds asset labels.
const MaxLabelLength = 200

// Policy holds the configurable allow-lists applied to new assets.
type Policy struct {
	// AllowedExtensions are lowercase extensions without the dot. Empty allows all.
	AllowedExtensions []string
	// AllowedRemoteHosts match exactly or as a parent domain. Empty allows all.
	AllowedRemoteHosts []string
	MaxUploadBytes     int64
}

func (p Policy) maxUploadBytes() int64 {
	if p.MaxUploadBytes <= 0 {
		return DefaultMaxUploadBytes
	}
	return p.MaxUploadBytes
}

// CheckExtension rejects filenames whose extension is not allow-listed.
func (p Policy) CheckExtension(filename string) error {
	if len(p.AllowedExtensions) == 0 {
		return nil
	}
	ext := Extension(filename)
	for _, allowed := range p.AllowedExtensions {
		if strings.TrimPrefix(strings.ToLower(allowed), ".") == ext && ext != "" {
			return nil
		}
	}
	return &PolicyError{Rule: "extension", Value: ext, Reason: ErrPolicyRejected}
}

// CheckRemote parses a remote URL and checks its host against the allow-list.
func (p Policy) CheckRemote(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return &PolicyError{Rule: "remote url", Value: raw, Reason: ErrInvalidRemote}
	}
	if len(p.AllowedRemoteHosts) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range p.AllowedRemoteHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return &PolicyError{Rule: "remote host", Value: host, Reason: ErrInvalidRemote}
}

// Extension returns the lowercase extension of name without the dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

// FilenameFromPath guesses a filename from the last segment of an asset path.
// For remote assets only the URL path is considered.
func FilenameFromPath(disk Disk, p string) string {
	if disk == DiskRemote {
		if u, err := url.Parse(p); err == nil {
			p = u.Path
		}
	}
	p = strings.TrimRight(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return base
}

// GuessMime returns the content type registered for the filename extension.
func GuessMime(filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(strings.ToLower(ext))
}

// ResolveRepoPath derives the target path inside the repository. An empty
// target becomes the source filename, a directory target gets the source
// filename appended and a target without extension gets the source extension.
func ResolveRepoPath(target, sourceFilename string) string {
	target = strings.TrimLeft(strings.TrimSpace(target), "/")
	source := path.Base(strings.ReplaceAll(sourceFilename, "\\", "/"))
	if source == "." || source == "/" {
		source = ""
	}
	switch {
	case target == "":
		return source
	case strings.HasSuffix(target, "/"):
		return target + source
	case path.Ext(target) == "" && path.Ext(source) != "":
		return target + path.Ext(source)
	}
	return target
}

// SplitRepo splits "owner/name". It reports false for anything else.
func SplitRepo(full string) (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(strings.TrimSpace(full), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}

func validateLabel(v *ValidationError, label string) {
	switch {
	case strings.TrimSpace(label) == "":
		v.Add("label", "is required")
	case utf8.RuneCountInString(label) > MaxLabelLength:
		v.Add("label", "must be at most 200 characters")
	}
}

func validateSHA256(v *ValidationError, sum string) {
	if sum != "" && !IsSHA256Hex(sum) {
		v.Add("sha256", "must be 64 hex characters")
	}
}

func validateRegister(req RegisterRequest) error {
	v := NewValidationError()
	validateLabel(v, req.Label)
	if !req.Disk.IsValid() {
		v.Add("disk", "must be one of remote, local, s3, github")
	}
	if strings.TrimSpace(req.Path) == "" {
		v.Add("path", "is required")
	}
	validateSHA256(v, req.SHA256)
	if req.Size != nil && *req.Size < 0 {
		v.Add("size", "must be >= 0")
	}
	if req.Disposition != "" && !req.Disposition.IsValid() {
		v.Add("disposition", "must be inline or attachment")
	}
	if req.Disk == DiskGitHub {
		if _, _, ok := SplitRepo(req.Repo); !ok {
			v.Add("repo", "must be owner/name")
		}
	}
	return v.OrNil()
}

// NormalizePatch validates a patch and normalises its slug.
func NormalizePatch(p Patch) (Patch, error) {
	v := NewValidationError()
	if p.Label != nil {
		validateLabel(v, *p.Label)
	}
	if p.Slug != nil {
		s := Slugify(*p.Slug)
		if s == "" {
			v.Add("slug", "must contain at least one letter or digit")
		}
		p.Slug = &s
	}
	if p.Filename != nil && strings.TrimSpace(*p.Filename) == "" {
		v.Add("filename", "must not be empty")
	}
	if p.SHA256 != nil {
		validateSHA256(v, *p.SHA256)
	}
	if p.Size != nil && *p.Size < 0 {
		v.Add("size", "must be >= 0")
	}
	if p.Disposition != nil && !p.Disposition.IsValid() {
		v.Add("disposition", "must be inline or attachment")
	}
	if p.Visibility != nil && strings.TrimSpace(*p.Visibility) == "" {
		v.Add("visibility", "must not be empty")
	}
	if err := v.OrNil(); err != nil {
		return Patch{}, err
	}
	return p, nil
}
