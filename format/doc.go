// Package format turns raw files into documents.
//
// A Table maps each core.Format to the Handler that parses it. Parse detects
// the format of a file from its name and content, runs the handler and then
// derives identifiers: an arXiv-style file stem becomes the document id, the
// first valid ISBN in the opening text is recorded, and every other document
// gets a name-based UUID so re-ingesting the same file is idempotent.
//
// A BibTeX file holds many entries and yields one document per entry, keyed
// by its cite key or arXiv eprint. Use ParseAll for such files.
package format
