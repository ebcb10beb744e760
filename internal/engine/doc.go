// Package engine evaluates alarm rules against incoming tag samples.
//
// It has two parts:
//   - Cache, the process-wide last value per tag
//   - Evaluator, which records each sample in the cache and then checks every
//     enabled rule on that tag
//
// A static rule compares the sample with a fixed value. A compare rule
// compares it with another tag's cached value plus an offset; a target tag
// that has never reported reads as 0.
//
// Equality operators compare float64 values exactly. Use them for discrete
// tags; analog tags rarely hit an exact value.
package engine
