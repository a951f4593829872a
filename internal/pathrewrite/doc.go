// Package pathrewrite turns move requests into ordered, typed rewrite rules
// and renders them into the rename table applied by a full-history index
// rewrite. Primary rules place each moved path at its destination, with at
// most one primary rule claiming any given path; refinement rules then rename
// self-named descriptor directories inside content that has already been
// relocated.
package pathrewrite
