// Package mock provides a mock client implementation for testing go-llm
// applications.
//
// The mock client implements the llm.Client interface with scripted
// responses, errors and streams, plus latency simulation and call logging.
// It is the recommended client for exercising the resilience layer without
// real API calls.
package mock
