//go:build !race

package auth

// defaultHashCost is the bcrypt cost for credentials created by the local verifier.
const defaultHashCost = 12
