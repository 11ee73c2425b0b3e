// Package export hosts the final stage. It copies the imputed table into the
// export folder under `.groundwork/data/`, mirrors it to the configured
// export path outside the dot directory, and drops a completion marker once
// both copies exist. The stage runs exclusively because it writes paths other
// tools watch.
package export
