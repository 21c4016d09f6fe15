// Package mysql persists the exchange journal in MySQL. It owns the connection
// pool setup, the embedded schema migrations and the exchange repository.
package mysql
