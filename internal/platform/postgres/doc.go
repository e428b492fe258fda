// Package postgres implements the store interfaces on PostgreSQL, using the
// standard database/sql API over the pgx stdlib driver. Each store accepts a
// store.DBTX so it can run against a plain connection or a transaction.
package postgres
