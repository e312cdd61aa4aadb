// Package sanitizer normalizes client input before validation.
//
// All functions are idempotent and never fail: input that cannot be
// normalized comes back as the empty string so that the validator rejects it.
package sanitizer
