// Package wire serializes identifier handles into messages.
//
// Writing a managed handle into a message hands part of its credit to the
// receiver. OutputArchive guarantees that this happens at most once per
// handle per message, no matter how often the handle appears in it:
//
//	ar := wire.NewOutputArchive()
//	for _, id := range ids {
//		ar.Preprocess(ctx, id) // schedules credit splits
//	}
//	ar.Await()                 // waits for replenishing splits
//	for _, id := range ids {
//		ar.SaveID(ctx, id)     // writes 16-byte GID + 1-byte mode
//	}
//
// Checkpoints outlive the sender and must not carry credit: writing a
// managed handle into a checkpointing archive fails with
// core.ErrInvalidStatus.
//
// Parcel wraps the handle section in a small envelope (id, source,
// destination, action name, payload) with optional LZ4 or ZSTD
// compression of the body.
package wire
