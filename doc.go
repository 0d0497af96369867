// Package gidref provides distributed reference counting for
// location-independent component identifiers.
//
// A Locality is one process of a distributed application. Components
// created on it are addressed by a global identifier (GID) that carries a
// share of the component's reference count ("credit"). Sending an
// identifier to another locality splits its credit locally; only when the
// credit of a copy runs out is the address service contacted. The component
// is destroyed on its home locality once all credit was returned.
//
// # Quick Start
//
//	authority, _ := gidref.NewAuthority(ctx, gidref.AuthorityConfig{}, nil)
//
//	home, _ := gidref.New(authority, gidref.WithLocalityID(0))
//	remote, _ := gidref.New(authority, gidref.WithLocalityID(1))
//	home.Start(ctx)
//	remote.Start(ctx)
//
//	id, _ := home.NewComponent(ctx, core.ComponentFirstUser, &counter{})
//	data, _ := home.Encode(ctx, &wire.Parcel{Destination: 1, IDs: []handle.ID{id}})
//	id.Release()
//
//	p, _ := remote.Decode(data)
//	p.IDs[0].Release() // last reference: the counter is destroyed on home
//
// # Handle Modes
//
//   - Managed: the default for components; credit is split per message.
//   - ManagedMoveCredit: all credit goes with the first message.
//   - Unmanaged: no reference counting (e.g. RuntimeSupport).
//
// # Shutdown
//
// Shutdown drains background credit traffic and then stops all lifetime
// management: releases after that point free local memory only.
package gidref
