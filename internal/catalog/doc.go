// Package catalog knows the remote catalog's URL scheme, its identifier rules, and how to pull
// document candidates out of a period index page.
package catalog
