// Package loss records production losses and registers shift goals.
//
// Both are administrative writes: they validate their input, upsert the
// target shift at zero gross when it does not exist yet, and never touch
// the gross count owned by the counter service.
package loss
