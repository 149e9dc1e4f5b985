// Package history provides backup.Logger implementations. File appends outcome lines to a
// text log, SQLite keeps queryable run history, Multi fans out to several loggers.
package history
