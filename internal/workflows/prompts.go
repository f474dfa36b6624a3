package workflows

import (
	"fmt"

	"github.com/papapumpkin/pulsar/internal/tracker"
)

const planPromptTemplate = `You are working on issue #%d: %s

%s

Produce an implementation plan for this issue. Write the plan into
pr_info/TASK_TRACKER.md with a "## Tasks" section listing each step as a
markdown checkbox ("- [ ] ..."). Add any supporting step notes under
pr_info/steps/. Do not modify source code yet.`

const implementPromptTemplate = `You are implementing issue #%d: %s

Open pr_info/TASK_TRACKER.md, pick the first unchecked task under
"## Tasks", implement it, and mark it done ("- [x]"). Keep changes
scoped to the task. Stop after one task.`

const prSummaryPromptTemplate = `Write a pull request title and body for the
following change. The first line of your reply is the title; everything
after is the body. Be concrete about what changed and why.

%s`

func planPrompt(issue tracker.Issue) string {
	return fmt.Sprintf(planPromptTemplate, issue.Number, issue.Title, issue.Body)
}

func implementPrompt(issue tracker.Issue) string {
	return fmt.Sprintf(implementPromptTemplate, issue.Number, issue.Title)
}

func prSummaryPrompt(diff string) string {
	return fmt.Sprintf(prSummaryPromptTemplate, diff)
}
