package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// The REST API has no linked-branches endpoint; this is the one GraphQL
// call in the client.
const linkedBranchesQuery = `query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    issue(number: $number) {
      linkedBranches(first: 50) {
        nodes { ref { name } }
      }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type linkedBranchesResponse struct {
	Data struct {
		Repository struct {
			Issue struct {
				LinkedBranches struct {
					Nodes []struct {
						Ref struct {
							Name string `json:"name"`
						} `json:"ref"`
					} `json:"nodes"`
				} `json:"linkedBranches"`
			} `json:"issue"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// LinkedBranches returns the set of branch names the tracker links to the
// issue. The transition protocol uses it as a safety gate against
// cross-issue contamination.
func (c *Client) LinkedBranches(ctx context.Context, number int) (map[string]bool, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: linkedBranchesQuery,
		Variables: map[string]any{
			"owner":  c.owner,
			"repo":   c.repo,
			"number": number,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: marshal linked-branches query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gh.BaseURL.Scheme+"://"+c.gh.BaseURL.Host+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tracker: linked-branches request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracker: linked branches #%d: %w", number, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: linked branches #%d", ErrAuth, number)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker: linked branches #%d: status %d", number, resp.StatusCode)
	}

	var parsed linkedBranchesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tracker: decode linked branches #%d: %w", number, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("tracker: linked branches #%d: %s", number, parsed.Errors[0].Message)
	}

	out := make(map[string]bool)
	for _, node := range parsed.Data.Repository.Issue.LinkedBranches.Nodes {
		if node.Ref.Name != "" {
			out[node.Ref.Name] = true
		}
	}
	return out, nil
}
