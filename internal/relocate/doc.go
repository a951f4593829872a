// Package relocate orchestrates history-preserving subdirectory moves between
// git repositories. The pipeline runs strictly in stage order: parse and
// validate the relocation map, resolve the external filtering tool, provision
// destination repositories, filter each repository pair's history into a
// scratch copy, merge the filtered history, rewrite historical paths onto
// their destinations, patch build metadata, and finally commit the results
// and remove the relocated paths from their sources. Commits created by a run
// carry Change-Id trailers and are linked to one another through Depends-On
// trailers recorded in a per-run change linkage.
package relocate
