// Package telemetry turns raw AT reply lines into typed records and
// maintains the polled snapshot the API serves from.
package telemetry

import "time"

// Snapshot is one complete poll cycle's view of the modem. It is
// immutable once published; every field group is independently nullable
// because firmware revisions differ in which queries they answer.
type Snapshot struct {
	CycleID   uint64    `json:"cycle_id"`
	Timestamp time.Time `json:"ts"`

	Registration *Registration       `json:"reg,omitempty"`
	Mode         *Mode               `json:"mode,omitempty"`
	Operator     *Operator           `json:"operator,omitempty"`
	Signal       *Signal             `json:"signal,omitempty"`
	Serving      *Serving            `json:"serving,omitempty"`
	CA           *CarrierAggregation `json:"ca,omitempty"`
	Neighbors    *Neighbors          `json:"neighbors,omitempty"`
	NetDev       *NetDev             `json:"netdev,omitempty"`
	Session      *Session            `json:"session,omitempty"`
	Temps        *Temperatures       `json:"temps,omitempty"`

	// Raw holds the per-command AT echo, populated only in verbose mode.
	Raw map[string][]string `json:"raw,omitempty"`
}

// Registration carries the network registration codes and their
// human-readable texts for the packet domains.
type Registration struct {
	EPS      *int   `json:"eps,omitempty"`
	NR5G     *int   `json:"nr5g,omitempty"`
	GPRS     *int   `json:"gprs,omitempty"`
	EPSText  string `json:"eps_text,omitempty"`
	NR5GText string `json:"nr5g_text,omitempty"`
	GPRSText string `json:"gprs_text,omitempty"`
}

// Mode describes the current radio access technology.
type Mode struct {
	RAT    string `json:"rat,omitempty"`    // "LTE", "SA", "NSA"
	Duplex string `json:"duplex,omitempty"` // "FDD", "TDD"
}

// Operator identifies the registered network.
type Operator struct {
	Name string `json:"name,omitempty"`
	MCC  string `json:"mcc,omitempty"`
	MNC  string `json:"mnc,omitempty"`
}

// Signal is the aggregate signal quality block.
type Signal struct {
	RSRP    *int   `json:"rsrp,omitempty"`
	RSRQ    *int   `json:"rsrq,omitempty"`
	SINR    *int   `json:"sinr,omitempty"`
	RSSI    *int   `json:"rssi,omitempty"`
	Quality string `json:"quality,omitempty"` // excellent / good / fair / poor
}

// Serving is the RAT-specific serving cell descriptor. Exactly one of
// SA, LTE, or the NSA pair is populated, selected by RAT.
type Serving struct {
	RAT string      `json:"rat"` // "SA", "LTE", "NSA", "UNKNOWN"
	SA  *ServingSA  `json:"sa,omitempty"`
	LTE *ServingLTE `json:"lte,omitempty"`
	NSA *ServingNSA `json:"nsa,omitempty"`
	NR  *ServingNR  `json:"nsa_nr,omitempty"`

	// Band is the unified display label ("LTE BAND 3", "NR5G BAND 41")
	// for whichever leg is serving.
	Band string `json:"band,omitempty"`
}

// ServingSA is the NR5G-SA serving cell record.
type ServingSA struct {
	State   string `json:"state,omitempty"`
	Duplex  string `json:"duplex,omitempty"`
	MCC     string `json:"mcc,omitempty"`
	MNC     string `json:"mnc,omitempty"`
	CellID  *int64 `json:"cellid,omitempty"`
	PCID    *int   `json:"pcid,omitempty"`
	TAC     string `json:"tac,omitempty"`
	NRARFCN *int   `json:"nrarfcn,omitempty"`
	Band    string `json:"band,omitempty"`
	DLBWMHz *int   `json:"dl_bw_mhz,omitempty"`
	RSRP    *int   `json:"rsrp,omitempty"`
	RSRQ    *int   `json:"rsrq,omitempty"`
	SINR    *int   `json:"sinr,omitempty"`
	SCSKHz  *int   `json:"scs_khz,omitempty"`
	Srxlev  *int   `json:"srxlev,omitempty"`
}

// ServingLTE is the LTE serving cell record.
type ServingLTE struct {
	State   string `json:"state,omitempty"`
	Duplex  string `json:"duplex,omitempty"`
	MCC     *int   `json:"mcc,omitempty"`
	MNC     *int   `json:"mnc,omitempty"`
	CellID  *int   `json:"cellid,omitempty"`
	PCID    *int   `json:"pcid,omitempty"`
	EARFCN  *int   `json:"earfcn,omitempty"`
	Band    *int   `json:"band,omitempty"`
	ULBWMHz *int   `json:"ul_bw_mhz,omitempty"`
	DLBWMHz *int   `json:"dl_bw_mhz,omitempty"`
	TAC     *int   `json:"tac,omitempty"`
	RSRP    *int   `json:"rsrp,omitempty"`
	RSRQ    *int   `json:"rsrq,omitempty"`
	RSSI    *int   `json:"rssi,omitempty"`
	SINR    *int   `json:"sinr,omitempty"`
	CQI     *int   `json:"cqi,omitempty"`
	TxPower *int   `json:"tx_power,omitempty"`
	Srxlev  *int   `json:"srxlev,omitempty"`
}

// ServingNSA is the LTE anchor of an EN-DC (NSA) connection.
type ServingNSA struct {
	Duplex  string `json:"duplex,omitempty"`
	MCC     *int   `json:"mcc,omitempty"`
	MNC     *int   `json:"mnc,omitempty"`
	CellID  *int   `json:"cellid,omitempty"`
	PCID    *int   `json:"pcid,omitempty"`
	EARFCN  *int   `json:"earfcn,omitempty"`
	Band    *int   `json:"band,omitempty"`
	ULBWMHz *int   `json:"ul_bw_mhz,omitempty"`
	DLBWMHz *int   `json:"dl_bw_mhz,omitempty"`
	TAC     *int   `json:"tac,omitempty"`
	RSRP    *int   `json:"rsrp,omitempty"`
	RSRQ    *int   `json:"rsrq,omitempty"`
	RSSI    *int   `json:"rssi,omitempty"`
	SINR    *int   `json:"sinr,omitempty"`
	CQI     *int   `json:"cqi,omitempty"`
	TxPower *int   `json:"tx_power,omitempty"`
	Srxlev  *int   `json:"srxlev,omitempty"`
}

// ServingNR is the NR leg of an EN-DC (NSA) connection.
type ServingNR struct {
	MCC     *int `json:"mcc,omitempty"`
	MNC     *int `json:"mnc,omitempty"`
	PCID    *int `json:"pcid,omitempty"`
	RSRP    *int `json:"rsrp,omitempty"`
	SINR    *int `json:"sinr,omitempty"`
	RSRQ    *int `json:"rsrq,omitempty"`
	NRARFCN *int `json:"nrarfcn,omitempty"`
	Band    *int `json:"band,omitempty"`
	DLBWMHz *int `json:"dl_bw_mhz,omitempty"`
	SCSKHz  *int `json:"scs_khz,omitempty"`
}

// Carrier is one component carrier in a CA configuration.
type Carrier struct {
	Index   int    `json:"idx"` // 0 for PCC, secondary carriers from 1
	RAT     string `json:"rat,omitempty"`
	Band    string `json:"band,omitempty"`
	ARFCN   *int   `json:"arfcn,omitempty"`
	DLBWMHz *int   `json:"dl_bw_mhz,omitempty"`
	PCI     *int   `json:"pci,omitempty"`
	RSRP    *int   `json:"rsrp,omitempty"`
	RSRQ    *int   `json:"rsrq,omitempty"`
	SINR    *int   `json:"sinr,omitempty"`
}

// CarrierAggregation groups the primary carrier with its secondaries.
type CarrierAggregation struct {
	Primary   *Carrier  `json:"primary,omitempty"`
	Secondary []Carrier `json:"secondary"`
	Summary   string    `json:"summary,omitempty"`
}

// NeighborLTE is one LTE neighbor cell measurement. Band is guessed
// from the EARFCN range when the row carries one.
type NeighborLTE struct {
	EARFCN *int   `json:"earfcn,omitempty"`
	PCI    *int   `json:"pci,omitempty"`
	RSRP   *int   `json:"rsrp,omitempty"`
	RSRQ   *int   `json:"rsrq,omitempty"`
	Band   string `json:"band,omitempty"`
}

// NeighborNR is one NR neighbor cell measurement. Band is guessed from
// the NR-ARFCN range.
type NeighborNR struct {
	NRARFCN *int   `json:"nrarfcn,omitempty"`
	PCI     *int   `json:"pci,omitempty"`
	RSRP    *int   `json:"rsrp,omitempty"`
	RSRQ    *int   `json:"rsrq,omitempty"`
	SCSKHz  *int   `json:"scs_khz,omitempty"`
	Band    string `json:"band,omitempty"`
}

// Neighbors holds per-RAT neighbor lists; empty lists are normal.
type Neighbors struct {
	LTE []NeighborLTE `json:"lte"`
	NR  []NeighborNR  `json:"nr"`
}

// NetDev carries the modem's network interface counters.
type NetDev struct {
	Iface   string `json:"iface,omitempty"`
	State   string `json:"state,omitempty"`
	IPv4    string `json:"ipv4,omitempty"`
	RxBytes *int64 `json:"rx_bytes,omitempty"`
	TxBytes *int64 `json:"tx_bytes,omitempty"`
}

// PDPContext is one packet data context merged from the CGDCONT/CGACT/
// CGCONTRDP views.
type PDPContext struct {
	CID   int    `json:"cid"`
	Type  string `json:"type,omitempty"`
	APN   string `json:"apn,omitempty"`
	State *int   `json:"state,omitempty"`
	IP    string `json:"ip,omitempty"`
	DNS1  string `json:"dns1,omitempty"`
	DNS2  string `json:"dns2,omitempty"`
}

// Session lists the PDP contexts and which one carries default traffic.
type Session struct {
	DefaultCID *int         `json:"default_cid,omitempty"`
	PDP        []PDPContext `json:"pdp"`
}

// Temperatures groups the modem's thermal sensors. A sensor reporting
// -273 has no reading and is treated as absent.
type Temperatures struct {
	Ambient  *int           `json:"ambient,omitempty"`
	MMW      *int           `json:"mmw,omitempty"`
	PA       map[string]int `json:"pa"`
	Baseband map[string]int `json:"baseband"`
	Raw      map[string]int `json:"raw"`
}
