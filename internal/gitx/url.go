package gitx

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	httpsRemote = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+?)(?:\.git)?/?$`)
	sshRemote   = regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+?)(?:\.git)?$`)
	branchIssue = regexp.MustCompile(`^(\d+)-`)
)

// RemoteURL returns the URL of origin.
func (r Repo) RemoteURL(ctx context.Context) (string, error) {
	return r.run(ctx, "remote", "get-url", "origin")
}

// ExtractOwnerRepo parses owner and repository name out of an HTTPS or SSH
// remote URL.
func ExtractOwnerRepo(url string) (owner, repo string, err error) {
	url = strings.TrimSpace(url)
	for _, re := range []*regexp.Regexp{httpsRemote, sshRemote} {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("unrecognized remote URL %q", url)
}

// ExtractIssueNumber returns the issue number encoded in a branch name of
// the form <digits>-<rest>, or 0 when the branch does not carry one.
func ExtractIssueNumber(branch string) int {
	m := branchIssue.FindStringSubmatch(branch)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
