// Package database owns the PostgreSQL connection pool and the crypto_market schema.
//
// Manager is the only component that opens physical connections. It has an
// explicit lifecycle: Initialize creates a bounded pgxpool, Acquire/Release
// lend a connection to exactly one caller, Shutdown closes everything. A
// Manager that was never initialized still works: each Acquire opens a
// private connection and Release closes it.
package database
