// Package metadata reads and writes the keyword tags embedded in image files.
//
// ExiftoolStore is the read/write implementation and drives a long-lived
// exiftool process. QuickReader answers "does this file carry any keywords"
// in-process, which keeps a full library scan from spawning exiftool per file.
package metadata
