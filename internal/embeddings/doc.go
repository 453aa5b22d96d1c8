// Package embeddings turns chunk and question text into vectors.
//
// Three providers are available: FastEmbed (local ONNX models, requires
// cgo and the ONNX runtime), TEI (a text-embeddings-inference server) and
// any OpenAI-compatible embeddings endpoint through langchaingo.
package embeddings
