package flags

import (
	"fmt"
	"strings"
)

const (
	choicePlaceholderOpenConstant   = "<"
	choicePlaceholderCloseConstant  = ">"
	choiceListSeparatorConstant     = "|"
	choiceUsageTemplateConstant     = "`%s` %s"
	choiceUsageBareTemplateConstant = "`%s`"
)

// FormatChoiceUsage renders a flag usage string whose placeholder lists the
// accepted choices with the default spelled in upper case, for example
// `<STRUCTURED|console>`.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	placeholder := choicePlaceholderOpenConstant + strings.Join(renderChoiceList(defaultChoice, choices), choiceListSeparatorConstant) + choicePlaceholderCloseConstant
	if len(strings.TrimSpace(description)) == 0 {
		return fmt.Sprintf(choiceUsageBareTemplateConstant, placeholder)
	}

	return fmt.Sprintf(choiceUsageTemplateConstant, placeholder, description)
}

// renderChoiceList trims the choices, drops blanks, collapses case-insensitive
// duplicates keeping the first spelling, and upper-cases the default choice.
func renderChoiceList(defaultChoice string, choices []string) []string {
	normalizedDefault := strings.ToLower(strings.TrimSpace(defaultChoice))
	renderedChoices := make([]string, 0, len(choices))
	seenChoices := make(map[string]struct{}, len(choices))

	for _, candidateChoice := range choices {
		trimmedChoice := strings.TrimSpace(candidateChoice)
		if len(trimmedChoice) == 0 {
			continue
		}

		loweredChoice := strings.ToLower(trimmedChoice)
		if _, alreadySeen := seenChoices[loweredChoice]; alreadySeen {
			continue
		}
		seenChoices[loweredChoice] = struct{}{}

		if loweredChoice == normalizedDefault {
			trimmedChoice = strings.ToUpper(trimmedChoice)
		}

		renderedChoices = append(renderedChoices, trimmedChoice)
	}

	return renderedChoices
}
