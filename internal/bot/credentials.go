package bot

import (
	"sort"
	"strings"
)

// CredentialEntry maps a pipeline-name fragment to the cross-account role ARN
// used for diagnostic queries. An empty Suffix marks the default entry.
type CredentialEntry struct {
	Suffix string
	ARN    string
}

// ResolveCredentialScope selects the role ARN for a pipeline: suffix entries
// match when their lower-cased suffix is a substring of the lower-cased
// pipeline name, longest suffix first; the bare default entry applies when no
// suffix matches; "" means "use ambient credentials".
//
// The suffix scan is ranked by length for determinism instead of the
// environment-table iteration order the naming convention originally implied.
func ResolveCredentialScope(pipelineName string, entries []CredentialEntry) string {
	name := strings.ToLower(pipelineName)

	ranked := make([]CredentialEntry, 0, len(entries))
	for _, e := range entries {
		if e.Suffix != "" {
			ranked = append(ranked, e)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Suffix) > len(ranked[j].Suffix)
	})
	for _, e := range ranked {
		if strings.Contains(name, strings.ToLower(e.Suffix)) {
			return e.ARN
		}
	}
	for _, e := range entries {
		if e.Suffix == "" {
			return e.ARN
		}
	}
	return ""
}
