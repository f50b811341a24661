// Package descriptor recovers the book descriptor embedded in the reader page
// and turns its spine into fetchable segment addresses.
//
// The embedded encoding is undocumented and was derived from observed traffic.
// Decoders are therefore selected by an explicit version name so a new
// encoding can be added next to the old one instead of replacing it.
package descriptor
