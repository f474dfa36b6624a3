// Package cache persists a per-repository snapshot of open issues so the
// polling loop can run without hammering the tracker. The file is an
// authoritative-read mirror only; the tracker remains the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/papapumpkin/pulsar/internal/tracker"
)

// DuplicateProtectionSeconds is the window after a successful tracker
// fetch during which the cache is returned verbatim. It smooths out a
// scheduler whose tick variance can double-fire within a minute.
const DuplicateProtectionSeconds = 50

// DefaultRefreshMinutes is the incremental-refresh horizon: a cache older
// than this gets a full rebuild.
const DefaultRefreshMinutes = 1440

// File is the serialized cache shape.
type File struct {
	LastChecked *time.Time               `json:"last_checked"`
	Issues      map[string]tracker.Issue `json:"issues"`
}

func emptyFile() *File {
	return &File{Issues: make(map[string]tracker.Issue)}
}

// Fetcher is the slice of the tracker API the cache needs.
type Fetcher interface {
	GetIssue(ctx context.Context, number int) (tracker.Issue, error)
	ListIssues(ctx context.Context, state string, includePRs bool, since *time.Time) ([]tracker.Issue, error)
}

// Store reads and writes cache files under one directory, one file per
// repository. It is single-writer; writes are atomic via temp-file-plus-
// rename.
type Store struct {
	Dir string

	now func() time.Time // test hook
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

// DefaultDir is <user-home>/.pulsar/coordinator_cache.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cache: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".pulsar", "coordinator_cache"), nil
}

// SafeName converts "owner/name" to a filesystem-safe cache name.
func SafeName(repoFullName string) string {
	return strings.ReplaceAll(repoFullName, "/", "_")
}

func (s *Store) path(repoFullName string) string {
	return filepath.Join(s.Dir, SafeName(repoFullName)+".issues.json")
}

// Load reads the cache file for the repository. Missing, corrupt, or
// malformed files yield an empty structure, never an error — the next
// refresh rebuilds.
func (s *Store) Load(repoFullName string) *File {
	data, err := os.ReadFile(s.path(repoFullName))
	if err != nil {
		return emptyFile()
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("cache file corrupt, rebuilding", "repo", repoFullName, "err", err)
		return emptyFile()
	}
	if f.Issues == nil {
		f.Issues = make(map[string]tracker.Issue)
	}
	return &f
}

// save writes the cache atomically: serialize to a temp file in the same
// directory, then rename onto the canonical path.
func (s *Store) save(repoFullName string, f *File) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir %s: %w", s.Dir, err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", repoFullName, err)
	}
	tmp, err := os.CreateTemp(s.Dir, SafeName(repoFullName)+".*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path(repoFullName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

// Options tunes one GetAllCachedIssues call.
type Options struct {
	ForceRefresh           bool
	CacheRefreshMinutes    int // 0 means DefaultRefreshMinutes
	AdditionalIssueNumbers []int
}

// GetAllCachedIssues implements the cache protocol: load, fetch explicitly
// requested issues, duplicate-protection short-circuit, full or
// incremental refresh, staleness logging, atomic persist.
func (s *Store) GetAllCachedIssues(ctx context.Context, repoFullName string, api Fetcher, opts Options) (map[int]tracker.Issue, error) {
	refreshMinutes := opts.CacheRefreshMinutes
	if refreshMinutes <= 0 {
		refreshMinutes = DefaultRefreshMinutes
	}

	f := s.Load(repoFullName)
	now := s.now().UTC()

	// Explicit requests are honored before the duplicate-protection check
	// so they survive the protection window.
	fetchedAdditional := s.fetchAdditional(ctx, repoFullName, api, f, opts.AdditionalIssueNumbers)

	if !opts.ForceRefresh && f.LastChecked != nil && now.Sub(*f.LastChecked) <= DuplicateProtectionSeconds*time.Second {
		slog.Debug("cache within duplicate-protection window", "repo", repoFullName, "last_checked", *f.LastChecked)
		if fetchedAdditional {
			if err := s.save(repoFullName, f); err != nil {
				slog.Warn("cache persist failed", "repo", repoFullName, "err", err)
			}
		}
		return toNumberMap(f.Issues), nil
	}

	full := opts.ForceRefresh || f.LastChecked == nil || now.Sub(*f.LastChecked) > time.Duration(refreshMinutes)*time.Minute

	var since *time.Time
	if !full {
		since = f.LastChecked
	}
	fresh, err := api.ListIssues(ctx, "open", false, since)
	if err != nil {
		return nil, fmt.Errorf("cache: refresh %s: %w", repoFullName, err)
	}
	fetchedAt := s.now().UTC()

	if full {
		prior := f.Issues
		// Additional-fetched issues are re-applied afterwards so explicit
		// requests survive the rebuild.
		additional := make(map[string]tracker.Issue)
		for _, n := range opts.AdditionalIssueNumbers {
			key := strconv.Itoa(n)
			if iss, ok := f.Issues[key]; ok {
				additional[key] = iss
			}
		}
		f.Issues = make(map[string]tracker.Issue, len(fresh))
		for _, iss := range fresh {
			f.Issues[strconv.Itoa(iss.Number)] = iss
		}
		logStaleness(repoFullName, prior, f.Issues)
		for key, iss := range additional {
			if _, ok := f.Issues[key]; !ok {
				f.Issues[key] = iss
			}
		}
	} else {
		for _, iss := range fresh {
			f.Issues[strconv.Itoa(iss.Number)] = iss
		}
	}

	// last_checked is monotonically non-decreasing.
	if f.LastChecked == nil || fetchedAt.After(*f.LastChecked) {
		f.LastChecked = &fetchedAt
	}
	if err := s.save(repoFullName, f); err != nil {
		slog.Warn("cache persist failed", "repo", repoFullName, "err", err)
	}
	return toNumberMap(f.Issues), nil
}

// fetchAdditional merges explicitly requested issues into the cache.
// Reports whether any fetch succeeded. On fetch failure the prior cached
// copy, if any, is kept.
func (s *Store) fetchAdditional(ctx context.Context, repoFullName string, api Fetcher, f *File, numbers []int) bool {
	fetched := false
	for _, n := range numbers {
		iss, err := api.GetIssue(ctx, n)
		if err != nil || !iss.Exists() {
			if _, ok := f.Issues[strconv.Itoa(n)]; ok {
				slog.Warn("additional issue fetch failed, keeping cached copy", "repo", repoFullName, "issue", n, "err", err)
			} else {
				slog.Warn("additional issue fetch failed, skipping", "repo", repoFullName, "issue", n, "err", err)
			}
			continue
		}
		f.Issues[strconv.Itoa(n)] = iss
		fetched = true
	}
	return fetched
}

// logStaleness reports divergences between the prior cache and a full
// refresh. Issues missing from the fresh open list surface as "no longer
// exists" because the list is filtered to open issues.
func logStaleness(repoFullName string, prior, fresh map[string]tracker.Issue) {
	if len(prior) == 0 {
		return
	}
	keys := make([]string, 0, len(prior))
	for k := range prior {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		old := prior[key]
		cur, ok := fresh[key]
		if !ok {
			slog.Info("cached issue no longer exists in repository", "repo", repoFullName, "issue", old.Number)
			continue
		}
		if old.State != cur.State {
			slog.Info("cached issue state changed", "repo", repoFullName, "issue", old.Number, "from", old.State, "to", cur.State)
		}
		if !sameLabels(old.Labels, cur.Labels) {
			slog.Info("cached issue labels changed", "repo", repoFullName, "issue", old.Number, "from", old.Labels, "to", cur.Labels)
		}
	}
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func toNumberMap(m map[string]tracker.Issue) map[int]tracker.Issue {
	out := make(map[int]tracker.Issue, len(m))
	for key, iss := range m {
		n, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[n] = iss
	}
	return out
}

// UpdateIssueLabels patches the cached label set after a successful
// tracker mutation so the duplicate-protection window does not
// re-dispatch the same issue. Best effort: failures are warnings.
func (s *Store) UpdateIssueLabels(repoFullName string, issueNumber int, oldLabel, newLabel string) {
	f := s.Load(repoFullName)
	key := strconv.Itoa(issueNumber)
	iss, ok := f.Issues[key]
	if !ok {
		slog.Warn("cache label patch: issue not cached", "repo", repoFullName, "issue", issueNumber)
		return
	}
	labels := make([]string, 0, len(iss.Labels)+1)
	hasNew := false
	for _, l := range iss.Labels {
		if l == oldLabel {
			continue
		}
		if l == newLabel {
			hasNew = true
		}
		labels = append(labels, l)
	}
	if newLabel != "" && !hasNew {
		labels = append(labels, newLabel)
	}
	iss.Labels = labels
	f.Issues[key] = iss
	if err := s.save(repoFullName, f); err != nil {
		slog.Warn("cache label patch persist failed", "repo", repoFullName, "issue", issueNumber, "err", err)
	}
}
