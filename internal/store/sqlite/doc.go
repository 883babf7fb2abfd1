// Package sqlite is the local SQLite store: the persisted OAuth2 credential
// and the metadata half of downloaded artifacts. Payload files live on disk
// next to it, one directory per track id.
//
// The schema is managed with golang-migrate from the embedded migrations
// package and the database is opened through the pure-Go modernc.org/sqlite
// driver.
package sqlite
