package config

import "strconv"

// UpstreamOptions configures the out-of-scope collaborators named in spec
// §6: the template pub/sub channel and the node's HTTP JSON-RPC endpoint
// used only to submit a completed block.
type UpstreamOptions struct {
	TemplateChannel string        `json:"templateChannel"`
	Node            *DaemonOptions `json:"node"`
}

// DaemonOptions is the HTTP endpoint of the node the Block-submit
// capability talks to. It carries no block-template-fetch surface; under
// this spec templates arrive over pub/sub, not RPC polling.
type DaemonOptions struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSL      bool   `json:"ssl"`
}

func (d *DaemonOptions) URL() string {
	scheme := "http"
	if d.SSL {
		scheme = "https"
	}
	return scheme + "://" + d.Host + ":" + strconv.Itoa(d.Port)
}
