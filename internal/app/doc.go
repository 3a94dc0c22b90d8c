// Package app wires the key store, key exchange and message codec into a
// Session and drives the auto-lock policy.
//
// Responsibilities:
// - Own the per-wallet key state; nothing else holds the wallet key.
// - Select storage, registry and blob backends once from configuration.
// - Refuse wallet secrets on unencrypted storage unless explicitly allowed.
//
// Non-responsibilities:
// - Blob transport, UI and transaction signing.
package app
