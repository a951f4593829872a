package pathrewrite

import (
	"path"
	"strings"
)

// RuleKind identifies how a rewrite rule transforms a tracked path.
type RuleKind string

const (
	// RuleKindPrefixSubstitute replaces one leading path prefix with another.
	RuleKindPrefixSubstitute RuleKind = "prefix-substitute"
	// RuleKindPrefixStrip removes a leading path prefix, landing content at the root.
	RuleKindPrefixStrip RuleKind = "prefix-strip"
	// RuleKindPrefixInsert pushes a top-level entry underneath a new prefix.
	RuleKindPrefixInsert RuleKind = "prefix-insert"
	// RuleKindBasenameSubstitute replaces one exact path with another.
	RuleKindBasenameSubstitute RuleKind = "basename-substitute"
)

const pathSeparatorConstant = "/"

// Rule rewrites tracked-file paths recorded in historical commits. SourcePattern
// holds the matched prefix (or, for basename substitution, the exact path) and
// TargetPattern the replacement prefix or path.
type Rule struct {
	Kind          RuleKind
	SourcePattern string
	TargetPattern string
}

// NewPrefixSubstituteRule builds a rule replacing sourcePrefix with targetPrefix.
func NewPrefixSubstituteRule(sourcePrefix string, targetPrefix string) Rule {
	return Rule{Kind: RuleKindPrefixSubstitute, SourcePattern: sourcePrefix, TargetPattern: targetPrefix}
}

// NewPrefixStripRule builds a rule removing sourcePrefix from matching paths.
func NewPrefixStripRule(sourcePrefix string) Rule {
	return Rule{Kind: RuleKindPrefixStrip, SourcePattern: sourcePrefix}
}

// NewPrefixInsertRule builds a rule moving the top-level entry anchorEntry
// underneath insertedPrefix.
func NewPrefixInsertRule(anchorEntry string, insertedPrefix string) Rule {
	return Rule{Kind: RuleKindPrefixInsert, SourcePattern: anchorEntry, TargetPattern: insertedPrefix}
}

// NewBasenameSubstituteRule builds a rule replacing the exact path sourcePath
// with targetPath.
func NewBasenameSubstituteRule(sourcePath string, targetPath string) Rule {
	return Rule{Kind: RuleKindBasenameSubstitute, SourcePattern: sourcePath, TargetPattern: targetPath}
}

// Apply rewrites trackedPath according to the rule and reports whether the
// rule matched. Prefix rules match the pattern itself as well as any path
// nested underneath it, because a moved source path may be a single file.
func (rule Rule) Apply(trackedPath string) (string, bool) {
	switch rule.Kind {
	case RuleKindPrefixSubstitute:
		if trackedPath == rule.SourcePattern {
			return rule.TargetPattern, true
		}
		if nestedRemainder, matched := strings.CutPrefix(trackedPath, rule.SourcePattern+pathSeparatorConstant); matched {
			return rule.TargetPattern + pathSeparatorConstant + nestedRemainder, true
		}
	case RuleKindPrefixStrip:
		if trackedPath == rule.SourcePattern {
			return path.Base(trackedPath), true
		}
		if nestedRemainder, matched := strings.CutPrefix(trackedPath, rule.SourcePattern+pathSeparatorConstant); matched {
			return nestedRemainder, true
		}
	case RuleKindPrefixInsert:
		if trackedPath == rule.SourcePattern || strings.HasPrefix(trackedPath, rule.SourcePattern+pathSeparatorConstant) {
			return rule.TargetPattern + pathSeparatorConstant + trackedPath, true
		}
	case RuleKindBasenameSubstitute:
		if trackedPath == rule.SourcePattern {
			return rule.TargetPattern, true
		}
	}
	return trackedPath, false
}

// RuleSet holds the ordered rewrite rules accumulated for one destination.
// Primary rules place moved content at its destination path; each tracked path
// is claimed by at most one primary rule so that independently moved paths
// never contaminate each other. Refinement rules run afterwards in order,
// each against the running result, renaming self-named descriptor directories
// inside already-relocated content.
type RuleSet struct {
	primaryRules    []Rule
	refinementRules []Rule
}

// AddPrimary appends primary rules preserving their order.
func (ruleSet *RuleSet) AddPrimary(rules ...Rule) {
	ruleSet.primaryRules = append(ruleSet.primaryRules, rules...)
}

// AddRefinement appends refinement rules preserving their order.
func (ruleSet *RuleSet) AddRefinement(rules ...Rule) {
	ruleSet.refinementRules = append(ruleSet.refinementRules, rules...)
}

// IsEmpty reports whether the set holds no rules at all.
func (ruleSet RuleSet) IsEmpty() bool {
	return len(ruleSet.primaryRules) == 0 && len(ruleSet.refinementRules) == 0
}

// PrimaryRules returns the primary rules in evaluation order.
func (ruleSet RuleSet) PrimaryRules() []Rule {
	return ruleSet.primaryRules
}

// RefinementRules returns the refinement rules in evaluation order.
func (ruleSet RuleSet) RefinementRules() []Rule {
	return ruleSet.refinementRules
}

// Apply rewrites trackedPath through the set and reports whether any rule
// changed it. The first matching primary rule wins; every refinement rule is
// then given the running result in turn.
func (ruleSet RuleSet) Apply(trackedPath string) (string, bool) {
	rewrittenPath := trackedPath
	for _, primaryRule := range ruleSet.primaryRules {
		if candidatePath, matched := primaryRule.Apply(rewrittenPath); matched {
			rewrittenPath = candidatePath
			break
		}
	}
	for _, refinementRule := range ruleSet.refinementRules {
		if candidatePath, matched := refinementRule.Apply(rewrittenPath); matched {
			rewrittenPath = candidatePath
		}
	}
	return rewrittenPath, rewrittenPath != trackedPath
}
