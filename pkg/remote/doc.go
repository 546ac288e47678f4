// Package remote implements engine.RemoteClient over the workspace spaces
// REST API.
//
// Requests carry a bearer token and are retried with exponential backoff
// on transport errors, throttling and server errors. Client errors such as
// 400 or 404 fail immediately. Every non-2xx response becomes an *APIError
// whose message has secrets masked and which classifies itself for the
// engine's error handling.
//
// The Serializer owns the wire format: it sorts tables, columns and
// instruction lists, assigns missing item ids and merges text instructions,
// and converts fetched spaces back into configs for import.
package remote
