// Package services holds cross-cutting helpers shared by the pipeline stage
// implementations: sentinel error markers with wrapping and classification,
// and context annotation for video IDs, run IDs, stages, and correlation IDs.
package services
