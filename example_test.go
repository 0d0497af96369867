package gidref_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hupe1980/gidref"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/handle"
	"github.com/hupe1980/gidref/wire"
)

type session struct {
	done chan struct{}
}

func (s *session) Close() error {
	close(s.done)
	return nil
}

// Example shows a component kept alive by a handle on another locality.
func Example() {
	ctx := context.Background()

	authority, err := gidref.NewAuthority(ctx, gidref.AuthorityConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}

	home, _ := gidref.New(authority, gidref.WithLocalityID(0))
	remote, _ := gidref.New(authority, gidref.WithLocalityID(1))
	if err := home.Start(ctx); err != nil {
		log.Fatal(err)
	}
	if err := remote.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer home.Shutdown(ctx)
	defer remote.Shutdown(ctx)

	s := &session{done: make(chan struct{})}
	id, err := home.NewComponent(ctx, core.ComponentFirstUser, s)
	if err != nil {
		log.Fatal(err)
	}

	data, err := home.Encode(ctx, &wire.Parcel{Destination: 1, Action: "session.open", IDs: []handle.ID{id}})
	if err != nil {
		log.Fatal(err)
	}
	home.Release(ctx, id)

	p, err := remote.Decode(data)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("received", p.Action, "from locality", p.Source)

	remote.Release(ctx, p.IDs[0])

	select {
	case <-s.done:
		fmt.Println("session closed")
	case <-time.After(5 * time.Second):
		fmt.Println("session still alive")
	}
	// Output:
	// received session.open from locality 0
	// session closed
}

// ExampleParseConfig shows the options derived from a configuration file.
func ExampleParseConfig() {
	cfg, err := gidref.ParseConfig(`
locality_id = 2

[wire]
compression = "zstd"
`)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(cfg.LocalityID, cfg.Wire.Compression, cfg.Cache.Capacity)
	// Output: 2 zstd 4096
}
