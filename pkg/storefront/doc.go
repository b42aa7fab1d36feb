// Package storefront provides the content management core of a digital
// storefront: catalog records, the binary files they reference, and the
// lifecycle that keeps the two consistent.
//
// Files are stored as blobs through a BlobStore, which splits each stream
// into fixed-size chunks held by a StorageBackend (memory, filesystem, S3,
// MinIO) and records a manifest in a BlobRepository. Content records live in
// a RecordRepository (memory, Postgres, SQLite). The Service orchestrates
// both so that a record never references a blob that does not exist and a
// failed operation never leaves blobs behind.
//
// Reference rules
//
// Create is all-or-nothing: every file is stored before the record is
// written and a failure removes what was stored. Update stores new files,
// saves the record and only then deletes the blobs it replaced. Delete is
// best-effort: each referenced blob is deleted independently and the
// outcomes are reported, then the record is removed.
package storefront
