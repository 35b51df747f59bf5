package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
)

// clusterIssueLimit bounds how many issues one clustering pass reads.
const clusterIssueLimit = 2000

// GroupStore persists clustered groups.
type GroupStore interface {
	ReplaceAll(ctx context.Context, tenantID string, groups []models.GroupUpsert) error
	List(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error)
}

// IssueReader loads issues for clustering.
type IssueReader interface {
	List(ctx context.Context, tenantID string, filter models.IssueFilter) ([]models.Issue, bool, error)
}

// Summarizer produces a human title and summary for a cluster of issues.
// guidance carries the tenant's grouping instructions; empty means none.
type Summarizer interface {
	SummarizeGroup(ctx context.Context, titles []string, guidance string) (title, summary string, err error)
}

// SettingsReader loads per-tenant AI instruction settings.
type SettingsReader interface {
	Get(ctx context.Context, tenantID string) (*models.TenantSettings, error)
}

// ClusterService groups likely-duplicate issues by a deterministic content
// signature. When a Summarizer is configured the groups get AI-written
// titles; otherwise the most common issue title is used.
type ClusterService struct {
	issues     IssueReader
	groups     GroupStore
	summarizer Summarizer
	settings   SettingsReader
	log        *logrus.Logger
}

// NewClusterService creates a ClusterService. summarizer and settings may be nil.
func NewClusterService(issues IssueReader, groups GroupStore, summarizer Summarizer, settings SettingsReader, log *logrus.Logger) *ClusterService {
	return &ClusterService{issues: issues, groups: groups, summarizer: summarizer, settings: settings, log: log}
}

// IssueSignature hashes normalized issue text into a stable clustering key.
// Lowercase, collapse whitespace, take the first 200 characters, hash.
func IssueSignature(title, body string) string {
	key := strings.Join(strings.Fields(strings.ToLower(title+" "+body)), " ")
	if len(key) > 200 {
		key = key[:200]
	}

	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])[:24]
}

// Recluster rebuilds the tenant's issue groups from the current issue set.
func (s *ClusterService) Recluster(ctx context.Context, tenantID string) error {
	issues, _, err := s.issues.List(ctx, tenantID, models.IssueFilter{Limit: clusterIssueLimit})
	if err != nil {
		return err
	}

	bySignature := make(map[string][]*models.Issue)

	for i := range issues {
		issue := &issues[i]
		sig := IssueSignature(issue.Title, issue.Description)
		bySignature[sig] = append(bySignature[sig], issue)
	}

	guidance := s.groupingGuidance(ctx, tenantID)

	groups := make([]models.GroupUpsert, 0, len(bySignature))

	for sig, members := range bySignature {
		groups = append(groups, s.buildGroup(ctx, sig, members, guidance))
	}

	// Stable write order keeps the replace transaction deterministic.
	sort.Slice(groups, func(i, j int) bool { return groups[i].Signature < groups[j].Signature })

	if err := s.groups.ReplaceAll(ctx, tenantID, groups); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"issues":    len(issues),
		"groups":    len(groups),
	}).Info("reclustered issues")

	return nil
}

// List returns the tenant's current groups.
func (s *ClusterService) List(ctx context.Context, tenantID string, limit int) ([]models.IssueGroup, error) {
	return s.groups.List(ctx, tenantID, limit)
}

// groupingGuidance returns the tenant's grouping instructions, or "" when no
// settings store is wired or the load fails. A settings outage must not block
// reclustering.
func (s *ClusterService) groupingGuidance(ctx context.Context, tenantID string) string {
	if s.settings == nil {
		return ""
	}

	settings, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		s.log.WithError(err).Warn("loading tenant settings for clustering")
		return ""
	}

	return settings.GroupingInstructions
}

func (s *ClusterService) buildGroup(ctx context.Context, sig string, members []*models.Issue, guidance string) models.GroupUpsert {
	g := models.GroupUpsert{
		Signature: sig,
		Frequency: len(members),
		Sources:   make(map[string]int),
	}

	titles := make([]string, 0, len(members))

	for _, m := range members {
		titles = append(titles, m.Title)
		g.Sources[m.Source]++

		if m.Severity > g.Severity {
			g.Severity = m.Severity
		}
	}

	g.Title = commonTitle(titles)

	// Only clusters with real duplication are worth an AI call.
	if s.summarizer != nil && len(members) > 1 {
		title, summary, err := s.summarizer.SummarizeGroup(ctx, titles, guidance)
		if err != nil {
			s.log.WithError(err).Debug("group summarization failed, keeping heuristic title")
		} else {
			if title != "" {
				g.Title = title
			}
			g.Summary = summary
		}
	}

	return g
}

// commonTitle picks the most frequent title, ties broken lexically.
func commonTitle(titles []string) string {
	counts := make(map[string]int, len(titles))
	for _, t := range titles {
		counts[t]++
	}

	best := ""
	bestCount := 0

	for t, n := range counts {
		if n > bestCount || (n == bestCount && t < best) {
			best = t
			bestCount = n
		}
	}

	return best
}
