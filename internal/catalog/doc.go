// Package catalog describes the content catalog that finished downloads are
// imported into. Destinations are directory-backed: each configured class
// directory under the library root becomes one destination. Classification
// of staged payloads by extension majority lives here too, next to the
// destinations it selects between.
package catalog
