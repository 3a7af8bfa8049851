// Package extract parses catalog detail pages into metadata and document text using goquery.
package extract
