//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race builds hash at the library default so lockout suites finish in time.
const defaultHashCost = bcrypt.DefaultCost
