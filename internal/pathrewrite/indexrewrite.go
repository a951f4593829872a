package pathrewrite

import (
	"strings"
)

const (
	// RenameTableEnvironmentVariable names the environment variable through
	// which the index-filter script locates the rendered rename table.
	RenameTableEnvironmentVariable = "HISTMOVE_RENAME_TABLE"

	renameTableColumnSeparatorConstant = "\t"
	renameTableRowSeparatorConstant    = "\n"
)

// indexFilterScriptConstant rewrites one commit's index. It lists every
// staged entry with quoting disabled, swaps entry paths found in the rename
// table, and feeds the result to update-index against a replacement index
// file, the sequence git documents for index filters. Rebuilding the index
// from a listing keeps the rewrite independent of the working tree, so the
// filter never touches checked-out files.
const indexFilterScriptConstant = `git -c core.quotePath=false ls-files -s | awk -F '\t' -v OFS='\t' -v table="$HISTMOVE_RENAME_TABLE" 'BEGIN { while ((getline line < table) > 0) { sep = index(line, "\t"); if (sep > 0) { renames[substr(line, 1, sep - 1)] = substr(line, sep + 1) } } } { if ($2 in renames) { $2 = renames[$2] } print }' | GIT_INDEX_FILE="$GIT_INDEX_FILE.new" git update-index --index-info && if test -f "$GIT_INDEX_FILE.new"; then mv "$GIT_INDEX_FILE.new" "$GIT_INDEX_FILE"; fi`

// RenameEntry pairs a path recorded somewhere in history with the path it is
// rewritten to.
type RenameEntry struct {
	HistoricalPath string
	RewrittenPath  string
}

// BuildRenameEntries applies the rule set to every historical path and
// returns an entry for each path the rules changed, preserving input order.
func BuildRenameEntries(ruleSet RuleSet, historicalPaths []string) []RenameEntry {
	var renameEntries []RenameEntry
	for _, historicalPath := range historicalPaths {
		rewrittenPath, changed := ruleSet.Apply(historicalPath)
		if !changed {
			continue
		}
		renameEntries = append(renameEntries, RenameEntry{HistoricalPath: historicalPath, RewrittenPath: rewrittenPath})
	}
	return renameEntries
}

// RenderRenameTable serializes rename entries into the tab-separated table
// consumed by the index-filter script.
func RenderRenameTable(renameEntries []RenameEntry) string {
	var tableBuilder strings.Builder
	for _, renameEntry := range renameEntries {
		tableBuilder.WriteString(renameEntry.HistoricalPath)
		tableBuilder.WriteString(renameTableColumnSeparatorConstant)
		tableBuilder.WriteString(renameEntry.RewrittenPath)
		tableBuilder.WriteString(renameTableRowSeparatorConstant)
	}
	return tableBuilder.String()
}

// IndexFilterScript returns the shell fragment executed by the history
// rewrite for every commit.
func IndexFilterScript() string {
	return indexFilterScriptConstant
}
