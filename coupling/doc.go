// Package coupling implements the lifecycle of exchange objects.
//
// A Coordinator accepts Allocate, Instantiate, Exchange and Free calls for
// zones, input variables and output variables in whatever order the host
// solver issues them. It groups objects by building, loads each building's
// engine on the first Instantiate, and hands out opaque handles.
//
//	coord := coupling.New(coupling.WithLoader(loader))
//	defer coord.Close(ctx)
//
//	h, err := coord.AllocateZone(ctx, coupling.ZoneSpec{...})
//	par, err := coord.InstantiateZone(ctx, h, 0)
//	res, err := coord.ExchangeZone(ctx, h, true, u, 0)
//	err = coord.FreeZone(ctx, h)
//
// Allocate is idempotent per caller instance name. Output variables with the
// same key in the same building share one engine slot; each caller gets its
// own handle and the slot is removed when the last one is freed.
//
// Host wraps a Coordinator for hosts that cannot handle errors: every failure
// is reported through spawn.Sink.Fatalf.
//
// A Coordinator is not safe for concurrent use.
package coupling
