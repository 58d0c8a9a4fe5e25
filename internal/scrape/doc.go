// Package scrape holds the named scrape routines the gateway exposes under
// /scrape/{name}. A routine receives a freshly launched browser.Page and runs a
// fixed sequence of interactions against one external site; any step error
// aborts the routine and is returned wrapped with the step that failed.
package scrape
