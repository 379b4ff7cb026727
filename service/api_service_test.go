package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Malyypnrhz7/vote-vault-fhe/api/client"
	"github.com/Malyypnrhz7/vote-vault-fhe/connection"
	"github.com/Malyypnrhz7/vote-vault-fhe/coordinator"
	"github.com/Malyypnrhz7/vote-vault-fhe/relayer"
	"github.com/Malyypnrhz7/vote-vault-fhe/storage"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestAPIService(t *testing.T) {
	c := qt.New(t)

	// demo coordinator, the relayer is never reached
	channel := relayer.NewChannel(func(context.Context) (relayer.Capability, error) {
		return nil, errors.New("no relayer")
	}, relayer.Options{AllowPlaceholder: true})
	coord := coordinator.New(connection.New(common.Address{}, nil), channel,
		storage.New(metadb.NewTest(t)), coordinator.Options{})
	defer coord.Close()
	ctx := context.Background()
	c.Assert(coord.Start(ctx), qt.Equals, types.DemoMode)

	// Port 0 lets the OS choose an available port
	apiService := NewAPI(coord, "127.0.0.1", 0)
	err := apiService.Start(ctx)
	c.Assert(err, qt.IsNil)
	defer apiService.Stop()

	host, port := apiService.HostPort()
	c.Assert(port, qt.Not(qt.Equals), 0)
	cli, err := client.New(fmt.Sprintf("http://%s:%d", host, port))
	c.Assert(err, qt.IsNil)
	st, err := cli.State(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(st.State, qt.Equals, types.DemoMode)
	c.Assert(st.Voter, qt.Equals, coordinator.DemoVoter)

	// Test stopping and restarting
	apiService.Stop()
	err = apiService.Start(ctx)
	c.Assert(err, qt.IsNil)

	// Test starting an already running service
	err = apiService.Start(ctx)
	c.Assert(err, qt.ErrorMatches, "service already running")
}
