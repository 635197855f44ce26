// Package capture implements the transcript-diff protocol of spec.md
// §4.E: read a host's line-delimited transcript from where the store
// last left off, normalize each record into a Message, divert
// oversized tool-result blobs to the file-reference table, and append
// the rest one message at a time, each in its own store transaction; a
// pass that stops partway keeps the messages it already appended, and the
// next pass resumes after them. Capture is safe to run concurrently with
// itself on the same session.
package capture
