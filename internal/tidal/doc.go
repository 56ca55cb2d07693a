// Package tidal wraps the Tidal REST API. It has two surfaces:
//
// The SessionHandle interface is the narrow boundary the auth
// subsystem depends on: setting tokens on the live session, resolving
// the current identity, and reading the user profile. The Client type
// implements it over HTTP.
//
// The Service type is the catalog/library wrapper consumed by the MCP
// tool layer: search, playlists, favorites, and recommendations. Its
// job is mechanical translation between the Tidal API's JSON shapes
// and the tool layer's domain objects, with pagination clamping.
package tidal
