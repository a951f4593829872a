// Package gitrepo contains helpers for interrogating and manipulating Git repositories.
//
// It exposes RepositoryManager for the repository-level operations history
// relocation relies on, from provisioning and cloning repositories through
// branch and remote management to merging fetched history and rewriting
// commit trees in place.
package gitrepo
