// Package ui holds the semantic text styles used in mrcrypt's terminal output.
//
// Each style renders with colour on a capable terminal and falls back to a
// plain decoration when NO_COLOR is set or colour is unavailable, so output
// stays readable when piped to a file.
package ui
