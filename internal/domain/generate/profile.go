package generate

import "strings"

const (
	structuredTemperature = 0.3
	structuredMaxTokens   = 3000
	freeformTemperature   = 0.7
	freeformMaxTokens     = 2000
)

// Profile holds the generation parameters derived from the request text.
type Profile struct {
	RequiresStructuredOutput bool
	Temperature              float32
	MaxTokens                int
}

// structuredTriggers are the keywords whose presence switches a request into
// structured-output mode: explicit table directives, enumeration verbs, and
// outcome/pattern analysis phrasing. Matched as case-insensitive substrings.
var structuredTriggers = []string{
	"table",
	"tabular",
	"list",
	"show",
	"find",
	"compare",
	"enumerate",
	"outcome",
	"pattern",
	"trend",
	"breakdown",
	"statistic",
}

// ProfileFor derives the formatting profile from the prompt and system
// message. Pure: identical input text always yields the identical profile.
func ProfileFor(prompt, systemMessage string) Profile {
	text := strings.ToLower(prompt + " " + systemMessage)
	for _, trigger := range structuredTriggers {
		if strings.Contains(text, trigger) {
			return Profile{
				RequiresStructuredOutput: true,
				Temperature:              structuredTemperature,
				MaxTokens:                structuredMaxTokens,
			}
		}
	}
	return Profile{
		RequiresStructuredOutput: false,
		Temperature:              freeformTemperature,
		MaxTokens:                freeformMaxTokens,
	}
}
