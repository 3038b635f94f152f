// Package diag defines the diagnostic model shared by the resolution core
// and the driver.
//
//   - Diagnostic is the central record: Severity, a stable numeric Code,
//     the subject symbol name, a message, and ">>> ..." note lines.
//   - Bag aggregates diagnostics with a bound, supporting merge, sort and
//     dedup; the driver collects one bag per link invocation.
//   - Reporter decouples producers from storage; the symbol table's
//     reporting entry points emit through it.
//
// The package performs no formatting or IO. Rendering lives in
// internal/diagfmt; orchestration in internal/driver.
package diag
