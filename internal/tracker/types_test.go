package tracker

import "testing"

func TestParseBaseBranch(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      string
		expectErr bool
	}{
		{
			name: "section with branch",
			body: "Some intro\n\n### Base Branch\n\nfeature/v2\n\n### Description\n\ntext",
			want: "feature/v2",
		},
		{
			name: "branch right after heading",
			body: "### Base Branch\nmain\n",
			want: "main",
		},
		{
			name: "no section",
			body: "just a body",
			want: "",
		},
		{
			name:      "empty section",
			body:      "### Base Branch\n\n### Description",
			expectErr: true,
		},
		{
			name:      "section at end with no content",
			body:      "text\n### Base Branch\n",
			expectErr: true,
		},
		{
			name:      "branch with spaces",
			body:      "### Base Branch\n\nnot a branch name\n",
			expectErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBaseBranch(tt.body)
			if tt.expectErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIssueHasLabel(t *testing.T) {
	issue := Issue{Number: 1, Labels: []string{"bug", "status-01:created"}}
	if !issue.HasLabel("bug") {
		t.Error("expected HasLabel(bug) true")
	}
	if issue.HasLabel("enhancement") {
		t.Error("expected HasLabel(enhancement) false")
	}
	if !issue.Exists() {
		t.Error("issue with number should exist")
	}
	if (Issue{}).Exists() {
		t.Error("zero issue should not exist")
	}
}
