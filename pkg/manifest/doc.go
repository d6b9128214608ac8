// Package manifest reads and writes the JSON document an application is
// exported to and imported from.
//
// Documents are validated against CUE definitions before they are decoded
// and after they are encoded. Exported entities are sanitised: audit and
// access fields are stripped, and CheckVisibility rejects any field tagged
// view:"internal" or view:"transient" that is still populated.
package manifest
