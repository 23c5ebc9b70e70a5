// Package artifactcache persists fetched artifact content in SQLite so a
// reloaded client does not re-download artifacts it already has.
//
// The store is the disk layer behind internal/registry: the registry consults
// it on memory misses and writes through on stores. It is treated as a cache,
// not an archive; schema changes bump schemaVersion and users clear the
// database to adopt the new schema.
package artifactcache
