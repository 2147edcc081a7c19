// Package grid owns the intensity accumulation layer of the side-scan data
// model.
//
// Responsibilities: grid sizing from tile bounds, per-cell intensity
// accumulation as pings arrive, and finalisation into an immutable MapImage.
// Key types: Bounds, GridConfig, Builder, MapImage.
//
// Hits reaching a Builder are already expressed in the tile-local frame
// (translated to the tile origin). Deriving that transform belongs upstream.
// No SQL or file I/O is allowed in this package.
package grid
