// Package stage defines the contract between the pipeline orchestrator and
// the individual processing stages: the Handler interface, the Artifact
// payload passed between stages, and stage health reporting.
package stage
