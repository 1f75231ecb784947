package client

import (
	"context"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/ipfs-force-community/venus-worker/api"
)

// NewSealerRPC creates a jsonrpc client against the sector-manager. The
// returned handle is safe for concurrent use from independent worker
// threads; construct it once and inject it into each Job.
func NewSealerRPC(ctx context.Context, addr string, requestHeader http.Header, opts ...jsonrpc.Option) (api.SealerAPI, jsonrpc.ClientCloser, error) {
	var res api.SealerStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, "Venus",
		[]interface{}{
			&res.Internal,
		},
		requestHeader,
		opts...,
	)

	return &res, closer, err
}
