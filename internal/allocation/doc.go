// Package allocation holds the pure rules of bed allocation: room occupancy,
// the request ledger and the derived per-student state. It performs no I/O;
// the application layer loads rooms and ledgers inside a transaction, applies
// these rules and persists the result.
package allocation
