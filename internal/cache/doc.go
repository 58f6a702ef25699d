// Package cache stores classifier results so that repeated values are not
// sent to the model service twice.
//
// Keys are SHA-256 hashes of the provider name, model and classified text.
// Values are whatever the caller stores; the classifier decorator stores span
// offsets, labels and scores only, never the text they cover, so a cache
// directory or Redis database holds no PHI.
//
// Two backends implement [Store]: a directory of JSON files ([New]) and
// Redis ([NewRedis]). Both honour a TTL in seconds; zero means no expiry.
// The default file cache directory is $XDG_CACHE_HOME/phiscrub (or the
// OS-appropriate equivalent).
package cache
