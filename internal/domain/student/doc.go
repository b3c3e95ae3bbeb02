// Package student contains the admitted-student and academic-program models
// together with the read-side repository contracts.
//
// A Student is created exactly once, by the admission flow, and is never
// mutated afterwards: its roll number, sequence number and join year are
// fixed at admission time. Programs (called domains in the public API) are
// configuration rows that the admission flow only reads.
//
// Implementations of the repository interfaces live in
// internal/infrastructure/persistence.
package student
