package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/loreleaf/loreleaf/internal/search"
)

// RenderResults prints a search response for the CLI. Styled on
// terminals, plain on pipes.
func RenderResults(w io.Writer, resp *search.Response, noColor bool) {
	styles := DefaultStyles()
	if noColor || DetectNoColor() || !IsTTY(w) {
		styles = NoColorStyles()
	}

	if len(resp.Hits) == 0 {
		_, _ = fmt.Fprintln(w, styles.Dim.Render("no results"))
		return
	}

	for i, hit := range resp.Hits {
		title := hit.Source.Title
		if title == "" {
			title = hit.PassageID
		}
		_, _ = fmt.Fprintf(w, "%s %s %s\n",
			styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			styles.Header.Render(title),
			styles.Score.Render(fmt.Sprintf("(%.3f)", hit.Score)))

		if len(hit.TaxonomyPath) > 0 {
			_, _ = fmt.Fprintf(w, "    %s\n",
				styles.Stage.Render(strings.Join(hit.TaxonomyPath, " > ")))
		}
		if hit.Source.URLOrRef != "" {
			_, _ = fmt.Fprintf(w, "    %s\n", styles.Dim.Render(hit.Source.URLOrRef))
		}
	}

	_, _ = fmt.Fprintf(w, "\n%s\n", styles.Label.Render(fmt.Sprintf(
		"%d results in %.1fms (%s, %d candidates)",
		len(resp.Hits), resp.LatencyMS, resp.Mode, resp.TotalCandidates)))
}
