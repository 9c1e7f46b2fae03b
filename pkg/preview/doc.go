/*
Package preview stores rendered section previews keyed by the exact inputs
that produced them.

BuildKey fingerprints a render (section, preset, resolved settings, blocks and
engine version) with SHA-256. A Store maps those keys to Records that expire
after a TTL; expiry is checked on every read, so a logically expired record is
never served even if it has not been swept yet. SQLiteStore persists records in
the rendered_previews table; MemoryStore keeps them in process.
*/
package preview
