// Package ollama provides an ai.AIProvider that talks to Ollama's native API
// through langchaingo, for setups that prefer it over the /v1 compatibility layer.
package ollama
