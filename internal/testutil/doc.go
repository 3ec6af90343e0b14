// Package testutil contains fixtures used across tests to reduce boilerplate
// when constructing tickets, personas and scripted model turns. They are not
// intended for production usage.
package testutil
