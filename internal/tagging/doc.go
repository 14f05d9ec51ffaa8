// Package tagging runs the quota-aware annotation loop.
//
// Each epoch pops the lowest-priority image, asks the annotator for tags,
// merges any missing tags into the file, and requeues the image one priority
// level higher. The epoch ends when the remote allowance (minus the reserved
// share) is spent, the remote refuses further calls, or every entry present
// at the start of the epoch has had a turn. Requeued entries are
// checkpointed every few items and the whole table is flushed when the epoch
// drains.
package tagging
