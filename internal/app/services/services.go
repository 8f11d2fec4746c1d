// Package services holds the application operations. Each operation borrows
// one database connection for its statements and releases it before any
// follow-up work such as a mirror refresh.
package services
