package isolation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// BranchStrategy selects the agent branch naming scheme.
type BranchStrategy string

const (
	// BranchPerFeature names branches after the task only.
	BranchPerFeature BranchStrategy = "feature"
	// BranchPerAgent nests branches under the agent's role.
	BranchPerAgent BranchStrategy = "agent"
	// BranchPerTask prefixes the role into a flat task branch.
	BranchPerTask BranchStrategy = "task"
)

// Valid returns true if the strategy is a known value.
func (s BranchStrategy) Valid() bool {
	switch s {
	case BranchPerFeature, BranchPerAgent, BranchPerTask:
		return true
	default:
		return false
	}
}

const maxSlugLen = 30

// Slug lowercases title, collapses every run of non-alphanumerics into a
// single hyphen and truncates to 30 characters.
func Slug(title string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		s = "work"
	}
	return s
}

// Stamp is the UTC day used in branch names.
func Stamp(t time.Time) string {
	return t.UTC().Format("20060102")
}

// BranchName computes the branch for role working on title at time at.
// Two agents of the same role on identically titled tasks on the same day
// compute the same name; the later initialisation takes the branch over.
func BranchName(strategy BranchStrategy, role models.Role, title string, at time.Time) string {
	slug := Slug(title)
	stamp := Stamp(at)
	switch strategy {
	case BranchPerFeature:
		return fmt.Sprintf("feature/%s-%s", slug, stamp)
	case BranchPerTask:
		return fmt.Sprintf("task/%s-%s-%s", role, slug, stamp)
	default:
		return fmt.Sprintf("agent/%s/%s-%s", role, slug, stamp)
	}
}

// branchPatterns are the ref globs that may hold swarm-created branches.
// Matches are confirmed with IsSwarmBranch.
func branchPatterns() []string {
	return []string{"feature/*", "agent/*/*", "task/*", "integration/*"}
}

const (
	slugPattern  = `[a-z0-9]+(?:-[a-z0-9]+)*`
	stampPattern = `[0-9]{8}`
)

var (
	featureBranchRe     = regexp.MustCompile(`^feature/(` + slugPattern + `)-` + stampPattern + `$`)
	agentBranchRe       = regexp.MustCompile(`^agent/([a-z]+)/(` + slugPattern + `)-` + stampPattern + `$`)
	taskBranchRe        = regexp.MustCompile(`^task/([a-z]+)-(` + slugPattern + `)-` + stampPattern + `$`)
	integrationBranchRe = regexp.MustCompile(`^integration/` + stampPattern + `-[0-9]+$`)
)

// IsSwarmBranch reports whether name has the exact shape of a branch this
// package creates: a known role, a slug of at most 30 characters and a
// YYYYMMDD stamp, or an integration branch.
func IsSwarmBranch(name string) bool {
	if integrationBranchRe.MatchString(name) {
		return validStamp(name[len("integration/") : len("integration/")+8])
	}
	if m := featureBranchRe.FindStringSubmatch(name); m != nil {
		return len(m[1]) <= maxSlugLen && validStamp(name[len(name)-8:])
	}
	if m := agentBranchRe.FindStringSubmatch(name); m != nil {
		return models.Role(m[1]).Valid() && len(m[2]) <= maxSlugLen && validStamp(name[len(name)-8:])
	}
	if m := taskBranchRe.FindStringSubmatch(name); m != nil {
		return models.Role(m[1]).Valid() && len(m[2]) <= maxSlugLen && validStamp(name[len(name)-8:])
	}
	return false
}

func validStamp(s string) bool {
	_, err := time.Parse("20060102", s)
	return err == nil
}
