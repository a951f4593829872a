// Package moveplan parses relocation map files into an immutable plan and
// validates the plan's preconditions before any repository is touched.
//
// A plan groups parsed move requests by their (source repository, destination
// repository) pair so that later stages filter and merge each pair exactly
// once, and preserves both row order and first-seen group order for
// deterministic execution.
package moveplan
