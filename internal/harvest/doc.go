// Package harvest defines the types, collaborator interfaces, and error taxonomy shared by the
// acquisition pipeline: fetching, candidate discovery, validation, storage, and reconciliation.
package harvest
