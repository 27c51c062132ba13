// Package fileutil provides copy and move helpers that survive crossing
// filesystem boundaries.
package fileutil
