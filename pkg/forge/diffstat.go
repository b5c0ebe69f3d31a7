package forge

import "strings"

// countDiffLines counts added and removed lines in a unified diff body.
// ---/+++ lines are file headers only before a file's first @@ hunk;
// inside a hunk they are content.
func countDiffLines(diff string) (additions, deletions int) {
	inHunk := false
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case strings.HasPrefix(line, "diff "):
			inHunk = false
		case !inHunk:
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}
