package main

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/rulesync/cmd/syncer/control"
	"github.com/HatiCode/rulesync/pkg/rulesync"
)

// trigger asks the syncer listening at addr to run op ("sync" or "reload").
func trigger(ctx context.Context, addr, op string) (*structpb.Struct, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	c := control.NewClient(conn)
	switch op {
	case "sync":
		return c.Sync(ctx)
	case "reload":
		return c.Reload(ctx)
	default:
		return nil, fmt.Errorf("unknown trigger %q", op)
	}
}

// triggerExitCode derives the process status from a trigger response.
func triggerExitCode(op string, out *structpb.Struct) int {
	if op != "sync" {
		return 0
	}
	state, _ := out.AsMap()["state"].(string)
	return exitCode(rulesync.State(state))
}
