// Package marker persists the installed version marker: a single text file
// holding "major.minor.patch".
//
// A missing marker is created with 0.0.0 on first load. Content that does
// not parse is reported, never reset.
package marker
