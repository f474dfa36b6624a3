package gitx

import "testing"

func TestExtractOwnerRepo(t *testing.T) {
	tests := []struct {
		url       string
		owner     string
		repo      string
		expectErr bool
	}{
		{url: "https://github.com/papapumpkin/pulsar.git", owner: "papapumpkin", repo: "pulsar"},
		{url: "https://github.com/papapumpkin/pulsar", owner: "papapumpkin", repo: "pulsar"},
		{url: "git@github.com:papapumpkin/pulsar.git", owner: "papapumpkin", repo: "pulsar"},
		{url: "git@gitlab.example.com:team/tool", owner: "team", repo: "tool"},
		{url: "http://host/o/r/", owner: "o", repo: "r"},
		{url: "not a url", expectErr: true},
		{url: "https://github.com/only-owner", expectErr: true},
	}
	for _, tt := range tests {
		owner, repo, err := ExtractOwnerRepo(tt.url)
		if tt.expectErr {
			if err == nil {
				t.Errorf("ExtractOwnerRepo(%q) expected error, got %s/%s", tt.url, owner, repo)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractOwnerRepo(%q) unexpected error: %v", tt.url, err)
			continue
		}
		if owner != tt.owner || repo != tt.repo {
			t.Errorf("ExtractOwnerRepo(%q) = %s/%s, want %s/%s", tt.url, owner, repo, tt.owner, tt.repo)
		}
	}
}

func TestExtractIssueNumber(t *testing.T) {
	tests := []struct {
		branch string
		want   int
	}{
		{"7-add-login", 7},
		{"123-fix", 123},
		{"0-zero", 0},
		{"feature/7-add-login", 0},
		{"add-login-7", 0},
		{"7", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ExtractIssueNumber(tt.branch); got != tt.want {
			t.Errorf("ExtractIssueNumber(%q) = %d, want %d", tt.branch, got, tt.want)
		}
	}
}

func TestValidBranchName(t *testing.T) {
	valid := []string{"7-add-login", "feature/login", "main"}
	invalid := []string{"", "  ", "a~b", "a^b", "a:b", "a?b", "a*b", "a[b"}
	for _, name := range valid {
		if !ValidBranchName(name) {
			t.Errorf("ValidBranchName(%q) = false, want true", name)
		}
	}
	for _, name := range invalid {
		if ValidBranchName(name) {
			t.Errorf("ValidBranchName(%q) = true, want false", name)
		}
	}
}
