package assetregistry

import "io"

// Request DTOs

// RegisterRequest contains parameters for registering an asset that already
// lives on some disk. No bytes pass through the registry.
type RegisterRequest struct {
	Label       string      `json:"label"`
	Filename    string      `json:"filename,omitempty"`
	Slug        string      `json:"slug,omitempty"`
	Disk        Disk        `json:"disk"`
	Path        string      `json:"path"`
	Repo        string      `json:"repo,omitempty"`
	Branch      string      `json:"branch,omitempty"`
	Mime        string      `json:"mime,omitempty"`
	Size        *int64      `json:"size,omitempty"`
	SHA256      string      `json:"sha256,omitempty"`
	VerifyHash  bool        `json:"verify_hash,omitempty"`
	Disposition Disposition `json:"disposition,omitempty"`
	Visibility  string      `json:"visibility,omitempty"`
}

// UploadRequest contains parameters for pushing a file to GitHub and
// registering it in one step.
//
// RepoPath is the target path inside the repository. A trailing slash means
// "directory", and the source filename is appended. Owner and Repo fall back
// to the configured defaults.
type UploadRequest struct {
	File           io.Reader
	SourceFilename string
	Label          string
	Filename       string
	Slug           string
	RepoPath       string
	Owner          string
	Repo           string
	Branch         string
	Message        string
	Mime           string
	Disposition    Disposition
	Visibility     string
	VerifyHash     bool
}

// DeleteRemoteRequest contains parameters for removing a file from GitHub.
type DeleteRemoteRequest struct {
	RepoPath string `json:"repo_path"`
	Owner    string `json:"owner,omitempty"`
	Repo     string `json:"repo,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Message  string `json:"message,omitempty"`
}

// RecentQuery selects the newest active assets.
type RecentQuery struct {
	// Label is a free-text match over label, slug and filename.
	Label      string
	Disk       Disk
	Visibility string
	Limit      int
}
