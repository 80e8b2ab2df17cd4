package retrieval

import (
	"fmt"
	"strings"
	"time"

	"nudge/internal/types"
)

// NoContextSentinel is returned by BuildContextString for an empty list so
// the model prompt always has a well-formed context section.
const NoContextSentinel = "No relevant context available."

// BuildContextString serializes ranked chunks into the numbered block that
// gets embedded in a composition prompt.
func BuildContextString(chunks []types.Chunk) string {
	if len(chunks) == 0 {
		return NoContextSentinel
	}
	var b strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "%d. [%s] (%s) %s", i+1, chunk.Source, formatAge(chunk.Age(time.Now())), chunk.Content)
		if len(chunk.Entities) > 0 {
			names := make([]string, len(chunk.Entities))
			for j, e := range chunk.Entities {
				names[j] = e.Value
			}
			fmt.Fprintf(&b, " | entities: %s", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
