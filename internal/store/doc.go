// Package store declares the repository used to persist harvest run history.
package store
