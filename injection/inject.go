package injection

import (
	"context"
	"fmt"
	"strings"

	"github.com/dpalmqvist/lossless-context-management/store"
)

const preamble = "Prior conversation summarized below. Use expand/S<id> to retrieve details."
const verbMenu = `Verbs: expand S<id>, grep "...", describe <id>`

// Build returns the reconstruction block for sessionID, or "" if the
// session has no top-level summaries yet.
func Build(ctx context.Context, st store.Store, sessionID string) (string, error) {
	summaries, err := st.TopLevelSummaries(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("<lcm-context>\n")
	b.WriteString(preamble)
	b.WriteString("\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "[%s  msgs %d-%d]    %s\n", store.SummaryRef(s.ID), s.CoversStart, s.CoversEnd, s.Content)
	}
	b.WriteString(verbMenu)
	b.WriteString("\n</lcm-context>")
	return b.String(), nil
}
