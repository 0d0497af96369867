// Package testutil provides testing utilities for gidref.
//
// This package is intended for use in tests only.
//
// # Address Service Double
//
//	client := testutil.NewRecordingClient(gid.DefaultInitialCredit)
//	client.SetCached(id, addr)           // make ResolveCached hit
//	client.GateIncrements()              // block increments until released
//	client.FailDecrements(err)           // inject failures
//	incs, decs := client.Increments(), client.Decrements()
//
// # Random Identifiers
//
//	rng := testutil.NewRNG(seed)
//	id := rng.GID(locality, core.ComponentFirstUser)
//	id = rng.WithRandomCredit(id)
package testutil
