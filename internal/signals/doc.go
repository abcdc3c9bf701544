// Package signals is the boundary to signal extraction. The scoring
// engines consume named signal values in [0,1] through the Provider
// interface; how those values are derived (keyword heuristics today, an
// ML extractor tomorrow) is an implementation detail behind the
// Extractor strategy.
//
// Missing signals degrade to 0 rather than erroring, keeping scoring
// total and available.
package signals
