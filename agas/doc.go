// Package agas provides the client surface of the address and lifetime
// service.
//
// The core of the module only consumes the Client interface: credit
// increments and decrements plus a lookup in the locality's read-only
// resolution cache. The package also ships an in-process implementation:
//
//   - Service is the authority. It owns the global credit table (through a
//     CreditStore), the id-to-address bindings and destroys a component on
//     its home locality once its global credit reaches zero.
//   - LocalClient is a locality's view of a Service, fronted by an address
//     cache.
//   - Dispatcher runs fire-and-forget credit traffic on background
//     goroutines, admitted by a resource.Controller.
//
// The authority assumes an identifier that is absent from the credit table
// holds the initial credit; the first increment or decrement seeds the
// entry. This keeps component creation free of any service round trip.
package agas
