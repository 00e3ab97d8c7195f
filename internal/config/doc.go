// Package config handles configuration loading for coven-chime.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension),
// with environment variable expansion, COVEN_CHIME_* overrides and defaults
// for everything the sound pipeline needs.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CHIME_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chime.yaml (~/.config/coven/chime.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${COVEN_CHIME_JWT_SECRET}"
//
// After decoding, variables such as COVEN_CHIME_MAX_BYTES or
// COVEN_CHIME_STORAGE_DIR override whatever the file contains.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # settings UI, upload and sound endpoints
//	  grpc_addr: ""               # optional gRPC health service
//
// Sounds:
//
//	sounds:
//	  storage_dir: "/var/lib/coven/user_sounds"   # default: beside the database
//	  max_bytes: 3145728
//	  allowed_ext: [mp3, ogg, flac, wav, m4a, aac, opus]
//	  allowed_mime: [audio/mpeg, audio/ogg, audio/wav]
//	  debug: false
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${COVEN_CHIME_JWT_SECRET}"   # optional, enables bearer tokens
//	  session_duration: "168h"
//
// Tailscale, logging, metrics and web (base_url) follow the same layout as
// the other coven services.
//
// # Validation
//
// Load() validates:
//
//   - an HTTP address or Tailscale hostname
//   - database path presence
//   - extension allow-list entries (no dots or separators)
//   - JWT secret minimum length (32 bytes) when set
//   - duration format validity
package config
