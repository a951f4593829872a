// Package metadata patches build metadata after a component relocation.
// Every fixer is best-effort: it applies its narrowly scoped substitution
// when a component's basename changed as part of the move, and silently
// leaves repositories alone when its target files or entries are absent,
// since not every component carries every metadata dialect. Fixers stage
// their edits for the finalizing commit, with the exception of the dependent
// descriptor fixer, which commits the third-party repositories it touches
// immediately.
package metadata
