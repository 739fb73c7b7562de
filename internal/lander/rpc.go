package lander

import "net/http"

// RpcLander submits over public RPC: bincode-encode, base64, POST
// sendTransaction to each configured endpoint in turn.
type RpcLander struct {
	*rpcStyleLander
}

func NewRpcLander(endpoints []string, client *http.Client) *RpcLander {
	return &RpcLander{&rpcStyleLander{name: "rpc", endpoints: endpoints, client: client}}
}
