// Package bucketset is a bucket index over a content-addressable entry store.
//
// A content-addressable store keeps entries,
// each of which is some bytes tagged with a type name,
// and indexes them by their hash,
// which is used as a unique key.
// This key is called the entry’s address.
// Addresses here are multihashes rendered in base58,
// so each address carries the name of the hash function that produced it.
//
// The fact that the lookup key is computed from an entry’s content
// means two writers that never talk to each other
// will nonetheless compute the same address for the same entry.
// That is the property this module builds on.
//
// A content-addressable store is good at “give me the entry with this address”
// and, with links,
// at “give me the entries this entry points to.”
// It is bad at “give me all entries of this type,”
// because there is no address to start from.
//
// The bucket subpackage solves that.
// Each record stored through a bucket.Index is assigned a bucket key,
// derived either from the record’s content
// (e.g. its first letter)
// or from a prefix of its hash.
// A small marker entry stands for the bucket,
// and the record is linked from it.
// Because the marker’s address is a pure function of the record type and the key,
// anyone can find a bucket without consulting a directory,
// and because the set of possible keys is finite and known,
// anyone can sweep every bucket to find every record.
//
// Marker entries must never change,
// so this module also provides a validation layer
// (the validate subpackage)
// that a store runs before accepting creations,
// modifications,
// and deletions.
//
// Several Store implementations live under the store subpackage:
// in memory,
// on the filesystem,
// in Pebble,
// SQLite,
// Postgresql,
// and Google Cloud Storage,
// plus wrappers for caching,
// logging,
// metrics,
// and access over gRPC.
package bucketset
