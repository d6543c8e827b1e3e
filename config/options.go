package config

import logging "github.com/ipfs/go-log/v2"

var log = logging.Logger("config")

// Options is the root configuration tree for the pool core, decoded from a
// single JSON document. Concern-specific options live in their own struct
// so that each component (stratum, vardiff, storage, api) only needs to
// know about its own slice of it.
type Options struct {
	ConnectionTimeout     int  `json:"connectionTimeout"`
	JobRebroadcastTimeout int  `json:"jobRebroadcastTimeout"`
	TCPProxyProtocol      bool `json:"tcpProxyProtocol"`

	Stratum  *StratumOptions  `json:"stratum"`
	API      *APIOptions      `json:"api"`
	Banning  *BanningOptions  `json:"banning"`
	Storage  *RedisOptions    `json:"storage"`
	Upstream *UpstreamOptions `json:"upstream"`
}

// StratumOptions carries the CLI/config surface named in spec §6: initial
// difficulty, [minDiff, maxDiff], target shares per minute, clampPow2,
// varDiff, extranonce size, and the per-port list.
type StratumOptions struct {
	MinDiff               float64              `json:"minDiff"`
	MaxDiff               float64              `json:"maxDiff"`
	DefaultDiff           float64              `json:"defaultDiff"`
	TargetSharesPerMinute float64              `json:"targetSharesPerMinute"`
	ClampPow2             bool                 `json:"clampPow2"`
	VarDiffEnabled        bool                 `json:"varDiff"`
	ExtranonceSize        int                  `json:"extranonceSize"` // 0..3
	TemplateCacheSize     int                  `json:"templateCacheSize"`
	Ports                 map[int]*PortOptions `json:"ports"`
}

// ClampedDefaultDiff snaps DefaultDiff into [MinDiff, MaxDiff].
func (so *StratumOptions) ClampedDefaultDiff() float64 {
	d := so.DefaultDiff
	if d < so.MinDiff {
		d = so.MinDiff
	}
	if d > so.MaxDiff {
		d = so.MaxDiff
	}
	return d
}
