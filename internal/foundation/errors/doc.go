// Package errors provides the classified error primitives used across relpub.
//
// Every failure a publication run can surface is a ClassifiedError carrying a
// category that doubles as the publication error kind:
//
//   - CategoryConfig: malformed coordinate or descriptor, fatal before any network action
//   - CategoryCredential: a credential key could not be resolved for one destination
//   - CategoryArtifact: a required artifact is absent, fatal for the whole run
//   - CategorySigning: detached signature could not be produced for one destination
//   - CategoryUpload: transport failure after the retry bound was exhausted
//   - CategoryConflict: a release coordinate is already published
//
// Errors also carry a severity, a retry strategy, structured context and an
// optional remediation hint that the report shows next to the failure.
//
// Example usage:
//
//	err := errors.CredentialError("missing credential key sonatypeUser").
//		WithContext("destination", "sonatype").
//		WithHint("set property sonatypeUser or env SONATYPE_USER").
//		Build()
package errors
