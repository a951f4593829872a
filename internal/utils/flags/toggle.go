package flags

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

const (
	toggleTrueCanonicalValue               = "true"
	toggleFalseCanonicalValue              = "false"
	toggleParseErrorTemplate               = "invalid toggle value %q"
	toggleArgumentTruePlaceholderConstant  = "<YES|no>"
	toggleArgumentFalsePlaceholderConstant = "<yes|NO>"
	togglePflagTypeName                    = "bool"
	longFlagPrefixConstant                 = "--"
	shortFlagPrefixConstant                = "-"
	argumentTerminatorConstant             = "--"
	flagAssignmentOperatorConstant         = "="
)

var (
	acceptedTrueLiterals  = []string{toggleTrueCanonicalValue, "yes", "on", "1", "t", "y"}
	acceptedFalseLiterals = []string{toggleFalseCanonicalValue, "no", "off", "0", "f", "n"}

	toggleLiteralValues = buildToggleLiteralTable()

	toggleRegistryMutex        sync.RWMutex
	registeredToggleNames      = map[string]struct{}{}
	registeredToggleShorthands = map[string]struct{}{}
)

func buildToggleLiteralTable() map[string]bool {
	table := make(map[string]bool, len(acceptedTrueLiterals)+len(acceptedFalseLiterals))
	for _, literal := range acceptedTrueLiterals {
		table[literal] = true
	}
	for _, literal := range acceptedFalseLiterals {
		table[literal] = false
	}
	return table
}

// AddToggleFlag registers a boolean flag accepting yes/no style literals in
// addition to true/false. Passing the flag without a value selects true.
func AddToggleFlag(flagSet *pflag.FlagSet, target *bool, name string, shorthand string, defaultValue bool, usage string) {
	if flagSet == nil || len(name) == 0 {
		return
	}

	state := newToggleState(defaultValue, target)
	if len(shorthand) > 0 {
		flagSet.VarP(state, name, shorthand, usage)
	} else {
		flagSet.Var(state, name, usage)
	}

	registeredFlag := flagSet.Lookup(name)
	if registeredFlag == nil {
		return
	}
	registeredFlag.NoOptDefVal = toggleTrueCanonicalValue
	registeredFlag.Usage = formatToggleUsage(usage, defaultValue)

	rememberToggleFlag(name, shorthand)
}

func formatToggleUsage(description string, defaultValue bool) string {
	placeholder := toggleArgumentFalsePlaceholderConstant
	if defaultValue {
		placeholder = toggleArgumentTruePlaceholderConstant
	}
	trimmedDescription := strings.TrimSpace(description)
	if len(trimmedDescription) == 0 {
		return fmt.Sprintf("`%s`", placeholder)
	}
	return fmt.Sprintf("`%s` %s", placeholder, trimmedDescription)
}

// NormalizeToggleArguments rewrites "--flag value" into "--flag=value" for
// registered toggle flags so pflag does not treat the detached value as a
// positional argument. Arguments past a bare "--" terminator pass through
// untouched.
func NormalizeToggleArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); {
		currentArgument := arguments[index]
		if currentArgument == argumentTerminatorConstant {
			normalized = append(normalized, arguments[index:]...)
			break
		}

		rewrittenArgument, consumed := attachToggleValue(currentArgument, arguments, index)
		if consumed == 0 {
			normalized = append(normalized, currentArgument)
			index++
			continue
		}

		normalized = append(normalized, rewrittenArgument)
		index += consumed
	}

	return normalized
}

func attachToggleValue(currentArgument string, arguments []string, index int) (string, int) {
	hasAssignment, isToggle := classifyToggleArgument(currentArgument)
	if !isToggle {
		return "", 0
	}
	if hasAssignment {
		return currentArgument, 1
	}
	if index+1 >= len(arguments) {
		return currentArgument, 1
	}
	candidateValue := arguments[index+1]
	if strings.HasPrefix(candidateValue, shortFlagPrefixConstant) {
		return currentArgument, 1
	}
	return currentArgument + flagAssignmentOperatorConstant + candidateValue, 2
}

func classifyToggleArgument(argument string) (bool, bool) {
	if strings.HasPrefix(argument, longFlagPrefixConstant) {
		flagName, hasAssignment := splitFlagName(strings.TrimPrefix(argument, longFlagPrefixConstant))
		if len(flagName) == 0 {
			return false, false
		}
		return hasAssignment, isRegisteredToggleName(flagName)
	}
	if strings.HasPrefix(argument, shortFlagPrefixConstant) {
		shorthand, hasAssignment := splitFlagName(strings.TrimPrefix(argument, shortFlagPrefixConstant))
		if len(shorthand) != 1 {
			return false, false
		}
		return hasAssignment, isRegisteredToggleShorthand(shorthand)
	}
	return false, false
}

func splitFlagName(flagText string) (string, bool) {
	assignmentIndex := strings.Index(flagText, flagAssignmentOperatorConstant)
	if assignmentIndex < 0 {
		return flagText, false
	}
	return flagText[:assignmentIndex], true
}

type toggleState struct {
	enabled bool
	target  *bool
}

func newToggleState(defaultValue bool, target *bool) *toggleState {
	if target != nil {
		*target = defaultValue
	}
	return &toggleState{enabled: defaultValue, target: target}
}

// Set parses yes/no style literals; an empty value counts as true so bare
// flag usage enables the toggle.
func (state *toggleState) Set(rawValue string) error {
	parsedValue, parseError := parseToggleLiteral(rawValue)
	if parseError != nil {
		return parseError
	}

	state.enabled = parsedValue
	if state.target != nil {
		*state.target = parsedValue
	}
	return nil
}

func (state *toggleState) String() string {
	if state == nil || !state.enabled {
		return toggleFalseCanonicalValue
	}
	return toggleTrueCanonicalValue
}

// Type reports "bool" so pflag exposes the flag through GetBool.
func (state *toggleState) Type() string {
	return togglePflagTypeName
}

func parseToggleLiteral(rawValue string) (bool, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(rawValue))
	if len(normalizedValue) == 0 {
		return true, nil
	}
	parsedValue, recognized := toggleLiteralValues[normalizedValue]
	if !recognized {
		return false, fmt.Errorf(toggleParseErrorTemplate, rawValue)
	}
	return parsedValue, nil
}

func rememberToggleFlag(name string, shorthand string) {
	toggleRegistryMutex.Lock()
	defer toggleRegistryMutex.Unlock()
	registeredToggleNames[name] = struct{}{}
	if len(shorthand) > 0 {
		registeredToggleShorthands[shorthand] = struct{}{}
	}
}

func isRegisteredToggleName(flagName string) bool {
	toggleRegistryMutex.RLock()
	defer toggleRegistryMutex.RUnlock()
	_, exists := registeredToggleNames[flagName]
	return exists
}

func isRegisteredToggleShorthand(shorthand string) bool {
	toggleRegistryMutex.RLock()
	defer toggleRegistryMutex.RUnlock()
	_, exists := registeredToggleShorthands[shorthand]
	return exists
}
