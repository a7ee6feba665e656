package provision

import (
	"regexp"
	"strings"
)

// maxRepoNameLen is GitHub's limit on repository names.
const maxRepoNameLen = 100

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)
	dashRuns     = regexp.MustCompile(`-+`)
)

// RepositoryName derives the repository name for a project:
// slug(prefix + id + "-" + title). "Site Redesign!" with id proj-7 becomes
// "proj-7-site-redesign".
func RepositoryName(prefix, projectID, title string) string {
	name := slugify(prefix + projectID + "-" + title)
	if len(name) > maxRepoNameLen {
		name = strings.TrimRight(name[:maxRepoNameLen], "-")
	}
	return name
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = nonSlugChars.ReplaceAllString(s, "")
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
