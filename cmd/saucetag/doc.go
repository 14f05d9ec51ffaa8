// Package main hosts the saucetag CLI.
//
// "run" starts the tagging daemon in the foreground. The remaining commands
// read the table file and the attempt journal directly, so they work whether
// or not a daemon is running; "scan" is the exception and refuses to run
// while the instance lock is held.
package main
