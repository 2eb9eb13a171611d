// Package wal implements the write-ahead log of a participant.
//
// Every protocol step a participant takes is appended as an Entry before the
// participant replies: a ready entry (carrying the request) when it votes ready,
// a commit or abort entry when it learns the decision. Appends are synced before
// they return, so an acknowledged step survives a crash.
//
// On startup the log is opened with Open, which loads all intact records and cuts
// off a torn tail, and Rebuild replays every committed operation into the node.
// Operations that were only prepared, or aborted, are not applied.
//
// The log lives on an afero.Fs, production code uses afero.NewOsFs() and tests
// use afero.NewMemMapFs().
package wal
