// Package sound stores and serves per-user custom chime files.
//
// # Upload
//
// Service.Upload runs a fixed sequence of checks, and the first failure
// decides the Reason:
//
//  1. nofile: nothing was submitted
//  2. upload: the HTTP layer reported a transport error
//  3. ext: the lower-cased extension is not in sounds.allowed_ext
//     (the declared MIME type is never consulted)
//  4. size: the declared size, or the bytes actually read, exceed
//     sounds.max_bytes
//  5. move: creating the user directory, writing the temp file, renaming
//     it into place, or saving the preference failed
//
// On success the file is at <storage_dir>/<user_id>/<sanitized name> and the
// user's chime_file preference names it. Earlier files are left in place.
//
// # Serving
//
// Service.Open only resolves paths that start with the caller's own
// "<user_id>/" segment (ReasonForbidden otherwise, whether or not the file
// exists). Service.ServeFile answers conditional requests with 304 using a
// weak ETag built from size and modification time.
package sound
