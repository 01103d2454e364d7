// Package users implements the worker endpoint: an in-memory CRUD API for
// the users resource under /api/users. Every process owns its own Store, so
// records created through one worker are invisible to the others.
package users
