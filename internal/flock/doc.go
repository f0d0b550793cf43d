// Package flock provides advisory, exclusive file locks for files shared
// between rackbrain processes, such as the rule match history.
//
// Import rules:
//   - CAN import: std lib, golang.org/x/sys
//   - MUST NOT import: internal packages
//
// Usage:
//
//	f, _ := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
//	if err := flock.Acquire(ctx, f, 5*time.Second); err != nil {
//	    return err
//	}
//	defer flock.Unlock(f.Fd())
package flock
