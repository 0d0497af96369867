// Package core defines the vocabulary shared by every gidref package:
// locality and component identifiers, resolved addresses, the runtime
// lifecycle state and the error taxonomy.
//
// It has no dependencies on the rest of the module so that gid, credit,
// handle, agas and wire can all refer to the same errors and states.
package core
