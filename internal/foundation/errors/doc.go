// Package errors provides classified error primitives used across mediapipe.
//
// A ClassifiedError carries a category (config, network, tool, ...), a severity
// and a retry strategy so callers can decide between degrading, retrying and
// aborting a document build without string matching.
//
//	err := errors.NetworkError("download failed").
//		Fatal().
//		WithContext("url", rawURL).
//		WithCause(cause).
//		Build()
package errors
