// Package git reads source control state of the project being released: the
// HEAD commit recorded in jar manifests and whether the working tree carries
// uncommitted changes.
package git
