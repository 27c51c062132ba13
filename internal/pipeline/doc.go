// Package pipeline coordinates video processing end to end. It maps queued
// tasks onto stage handlers, advances the video state machine, fans out the
// thumbnail branch after download, and joins it back before segmentation.
package pipeline
