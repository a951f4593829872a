// Package histfilter resolves and drives the external history-filtering tool.
// The tool does the actual history reduction; this package stages an isolated
// scratch clone per repository pair so the destructive rewrite can never
// damage the real source repository, and reuses an existing scratch copy when
// a prior run already produced one.
package histfilter
