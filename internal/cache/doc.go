// Package cache defines the versioned response store behind the offline
// coordinator. Each store is named by a version tag and maps request keys
// (method + absolute URL) to captured response snapshots. Writes are atomic
// from the reader's point of view: an entry is either fully present or
// absent. Whole stores can be enumerated and dropped so superseded cache
// generations can be purged while the current generation keeps serving.
//
// Two durable backends are provided: a filesystem layout (one directory per
// version, temp file + rename per entry) and a LevelDB database keyed by
// version prefix. Either can sit behind an in-memory LRU front.
package cache
