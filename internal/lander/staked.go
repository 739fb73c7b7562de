package lander

import "net/http"

// StakedLander uses the same wire shape as Rpc, directed at the
// staked-connection endpoint list.
type StakedLander struct {
	*rpcStyleLander
}

func NewStakedLander(endpoints []string, client *http.Client) *StakedLander {
	return &StakedLander{&rpcStyleLander{name: "staked", endpoints: endpoints, client: client}}
}
