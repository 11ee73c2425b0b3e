// Package dictionary hosts the stage that turns the raw dataset
// documentation into the machine-readable variables dictionary.
//
// The stage reads the documentation text configured under
// dataset.documentation (decoded per dataset.encoding) and parses every
// variable header into a name, kind, and allowed value set. It writes two
// artifacts under `.groundwork/data/`:
//
//   - variables.json (`artifact.VariablesJSON`) consumed by the audit and
//     repair stages
//   - variables.yaml (`artifact.VariablesYAML`) kept readable for review
//
// Downstream stages trust the dictionary verbatim, so both artifacts carry
// the documentation checksum as their fingerprint and are reported stale
// whenever the source text changes.
package dictionary
