// Package server holds the HTTP query server configuration.
//
// The server itself is started by the start command; this package only
// defines the settings it reads: whether the query API runs at all, the
// listen port and the API key checked by the auth middleware.
package server
