// Package folder caches the state of watched directories.
//
// A Registry hands out one Folder per canonical directory path. Each Folder
// keeps the directory listing current by merging listing results, change
// notifications and mount events into batched notifications that observers
// receive one at a time on the registry's consumer executor.
package folder
