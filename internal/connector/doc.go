// Package connector talks to the 1C update distribution service.
//
// Connector is the contract the update flows depend on; HTTPConnector binds
// it to a JSON gateway. A nil result with a nil error means the service has
// nothing to offer for the request.
package connector
