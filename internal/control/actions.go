// Package control plans and executes modem configuration actions
// behind the feature and dangerous-action gates.
package control

import (
	"fmt"
	"strconv"
	"strings"
)

// Params carries the validated request fields for any action. Each
// planner reads only the fields its action defines.
type Params struct {
	DryRun bool `json:"dry_run,omitempty" doc:"Plan without executing"`

	// reboot, usbnet, gnss
	Mode string `json:"mode,omitempty" doc:"Action mode, e.g. soft/full/rf_off for reboot"`

	// roaming, gnss, cell_lock
	Enable *bool `json:"enable,omitempty" doc:"Toggle state"`

	// usbnet
	RebootModem bool `json:"reboot_modem,omitempty" doc:"Reboot the module after switching USB mode"`

	// apn
	CID          int    `json:"cid,omitempty" doc:"PDP context id"`
	PDPType      string `json:"pdp_type,omitempty" doc:"IP, IPV6 or IPV4V6"`
	APN          string `json:"apn,omitempty" doc:"Access point name"`
	AuthType     string `json:"auth_type,omitempty" doc:"none, pap or chap"`
	AuthUser     string `json:"auth_user,omitempty"`
	AuthPassword string `json:"auth_password,omitempty"`
	Activate     bool   `json:"activate,omitempty" doc:"Activate the context after configuring"`

	// band, cell_lock
	RAT      string   `json:"rat,omitempty" doc:"LTE, NR5G or BOTH"`
	Reset    bool     `json:"reset,omitempty" doc:"Clear existing band locks"`
	LTEBands []string `json:"lte_bands,omitempty"`
	NRBands  []string `json:"nr_bands,omitempty"`
	PCI      *int     `json:"pci,omitempty" doc:"Physical cell id to lock onto"`

	// ca
	LTECAEnable *bool `json:"lte_ca_enable,omitempty"`
	NRCAEnable  *bool `json:"nr_ca_enable,omitempty"`

	// network_mode
	ModePref string `json:"mode_pref,omitempty" doc:"AUTO, LTE, NR5G or colon-joined combination"`

	// band_preference
	LTEPrefBands []int `json:"lte_pref_bands,omitempty"`
	NSAPrefBands []int `json:"nsa_pref_bands,omitempty"`
	SAPrefBands  []int `json:"sa_pref_bands,omitempty"`

	// reset_profile
	Profile string `json:"profile,omitempty" doc:"Profile name, currently modem_safe"`
}

// ValidationError rejects a request before anything reaches the
// modem.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Spec is one action table entry. Plan is pure; it maps validated
// fields to the ordered command list without touching the device.
type Spec struct {
	Dangerous bool
	// Note surfaces classification caveats in the response detail.
	Note string
	Plan func(Params) ([]string, error)
	// ReadBack confirms the resulting state after a successful
	// execution.
	ReadBack []string
}

// Actions is the authoritative action table. Every gate decision and
// plan flows through it; adding an action elsewhere cannot bypass the
// gates.
var Actions = map[string]Spec{
	"reboot":          {Dangerous: true, Plan: planReboot},
	"usbnet":          {Dangerous: true, Plan: planUsbNet},
	"apn":             {Dangerous: true, Plan: planAPN},
	"band":            {Dangerous: true, Plan: planBand},
	"cell_lock":       {Dangerous: true, Plan: planCellLock},
	"reset_profile":   {Dangerous: true, Plan: planResetProfile},
	"roaming":         {Dangerous: false, Plan: planRoaming, ReadBack: []string{`AT+QNWPREFCFG="roam_pref"`}},
	"gnss":            {Dangerous: false, Plan: planGnss},
	"network_mode":    {Dangerous: false, Plan: planNetworkMode, ReadBack: []string{`AT+QNWPREFCFG="mode_pref"`}},
	"band_preference": {Dangerous: false, Plan: planBandPreference, ReadBack: []string{`AT+QNWPREFCFG="lte_band"`, `AT+QNWPREFCFG="nsa_nr5g_band"`, `AT+QNWPREFCFG="nr5g_band"`}},
	// Vendor documents disagree on whether the CA toggle is dangerous.
	// Classified dangerous here until product signs off; the note is
	// returned with every response so the discrepancy stays visible.
	"ca": {Dangerous: true, Note: "classification disputed: reference manuals disagree on whether the CA toggle is dangerous", Plan: planCA},
}

func planReboot(p Params) ([]string, error) {
	switch p.Mode {
	case "soft":
		return []string{"AT+CFUN=1,1"}, nil
	case "full":
		// RF off first, then restart.
		return []string{"AT+CFUN=4", "AT+CFUN=1,1"}, nil
	case "rf_off":
		return []string{"AT+CFUN=4"}, nil
	}
	return nil, validationErrorf("unsupported reboot mode %q", p.Mode)
}

func planRoaming(p Params) ([]string, error) {
	if p.Enable == nil {
		return nil, validationErrorf("roaming requires enable")
	}
	pref := "1"
	if *p.Enable {
		pref = "255"
	}
	return []string{`AT+QNWPREFCFG="roam_pref",` + pref}, nil
}

func planGnss(p Params) ([]string, error) {
	if p.Enable == nil {
		return nil, validationErrorf("gnss requires enable")
	}
	val := "0"
	if *p.Enable {
		val = "1"
	}
	if p.Mode != "" {
		return []string{fmt.Sprintf(`AT+QCFG="gnss",%s,%s`, p.Mode, val)}, nil
	}
	return []string{fmt.Sprintf(`AT+QCFG="gnss","all",%s`, val)}, nil
}

var usbNetModes = map[string]string{
	"ecm":   "0",
	"rndis": "1",
	"ncm":   "2",
	"mbim":  "2",
	"auto":  "0",
}

func planUsbNet(p Params) ([]string, error) {
	mode, ok := usbNetModes[strings.ToLower(p.Mode)]
	if !ok {
		return nil, validationErrorf("unsupported usbnet mode %q", p.Mode)
	}
	cmds := []string{`AT+QCFG="usbnet",` + mode}
	if p.RebootModem {
		cmds = append(cmds, "AT+CFUN=1,1")
	}
	return cmds, nil
}

var apnAuthTypes = map[string]string{"none": "0", "pap": "1", "chap": "2"}

func planAPN(p Params) ([]string, error) {
	if p.CID < 1 || p.CID > 16 {
		return nil, validationErrorf("cid %d out of range", p.CID)
	}
	if p.APN == "" {
		return nil, validationErrorf("apn required")
	}
	pdpType := p.PDPType
	if pdpType == "" {
		pdpType = "IPV4V6"
	}
	cmds := []string{fmt.Sprintf(`AT+CGDCONT=%d,"%s","%s"`, p.CID, pdpType, p.APN)}
	if p.AuthType != "" && p.AuthType != "none" && p.AuthUser != "" && p.AuthPassword != "" {
		auth, ok := apnAuthTypes[strings.ToLower(p.AuthType)]
		if !ok {
			return nil, validationErrorf("unsupported auth type %q", p.AuthType)
		}
		if auth != "0" {
			cmds = append(cmds, fmt.Sprintf(`AT+CGAUTH=%d,%s,"%s","%s"`, p.CID, auth, p.AuthUser, p.AuthPassword))
		}
	}
	if p.Activate {
		cmds = append(cmds, fmt.Sprintf("AT+CGACT=1,%d", p.CID))
	}
	return cmds, nil
}

func planBand(p Params) ([]string, error) {
	rat := strings.ToUpper(p.RAT)
	if rat == "" {
		rat = "BOTH"
	}
	if rat != "LTE" && rat != "NR5G" && rat != "BOTH" {
		return nil, validationErrorf("unsupported rat %q", p.RAT)
	}
	var cmds []string
	if p.Reset {
		if rat == "LTE" || rat == "BOTH" {
			cmds = append(cmds, `AT+QCFG="lte/band","0"`)
		}
		if rat == "NR5G" || rat == "BOTH" {
			cmds = append(cmds, `AT+QCFG="nr5g/band","0"`)
		}
		return cmds, nil
	}
	if (rat == "LTE" || rat == "BOTH") && len(p.LTEBands) > 0 {
		cmds = append(cmds, fmt.Sprintf(`AT+QCFG="band","LTE","%s"`, strings.Join(p.LTEBands, ",")))
	}
	if (rat == "NR5G" || rat == "BOTH") && len(p.NRBands) > 0 {
		cmds = append(cmds, fmt.Sprintf(`AT+QCFG="band","NR5G","%s"`, strings.Join(p.NRBands, ",")))
	}
	return cmds, nil
}

var cellLockRATs = map[string]string{
	"lte":  "LTE",
	"nr5g": "NR5G",
	"nr":   "NR5G",
	"5g":   "NR5G",
}

func planCellLock(p Params) ([]string, error) {
	if p.Enable == nil {
		return nil, validationErrorf("cell_lock requires enable")
	}
	if !*p.Enable {
		return []string{"AT+QNWLOCK=0"}, nil
	}
	var cmds []string
	if p.RAT != "" {
		rat, ok := cellLockRATs[strings.ToLower(p.RAT)]
		if !ok {
			rat = strings.ToUpper(p.RAT)
		}
		cmds = append(cmds, fmt.Sprintf(`AT+QNWLOCK=1,"%s"`, rat))
	}
	return cmds, nil
}

func planCA(p Params) ([]string, error) {
	var cmds []string
	if p.LTECAEnable != nil {
		cmds = append(cmds, `AT+QCFG="lte/ca",`+boolVal(*p.LTECAEnable))
	}
	if p.NRCAEnable != nil {
		cmds = append(cmds, `AT+QCFG="nr5g/ca",`+boolVal(*p.NRCAEnable))
	}
	switch {
	case p.LTECAEnable == nil && p.NRCAEnable == nil:
		// Neither flag supplied resolves to the global enable, not a
		// no-op.
		cmds = append(cmds, `AT+QCFG="ca",1`)
	case p.LTECAEnable != nil && p.NRCAEnable == nil:
		// A single RAT flag also mirrors onto the global switch.
		cmds = append(cmds, `AT+QCFG="ca",`+boolVal(*p.LTECAEnable))
	case p.LTECAEnable == nil && p.NRCAEnable != nil:
		cmds = append(cmds, `AT+QCFG="ca",`+boolVal(*p.NRCAEnable))
	}
	return cmds, nil
}

func boolVal(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func planNetworkMode(p Params) ([]string, error) {
	if p.ModePref == "" {
		return nil, nil
	}
	for _, part := range strings.Split(p.ModePref, ":") {
		switch strings.ToUpper(part) {
		case "AUTO", "WCDMA", "LTE", "NR5G":
		default:
			return nil, validationErrorf("unsupported mode_pref element %q", part)
		}
	}
	return []string{`AT+QNWPREFCFG="mode_pref",` + p.ModePref}, nil
}

func planBandPreference(p Params) ([]string, error) {
	joinBands := func(bands []int) string {
		parts := make([]string, len(bands))
		for i, b := range bands {
			parts[i] = strconv.Itoa(b)
		}
		return strings.Join(parts, ":")
	}
	var cmds []string
	if len(p.LTEPrefBands) > 0 {
		cmds = append(cmds, `AT+QNWPREFCFG="lte_band",`+joinBands(p.LTEPrefBands))
	}
	if len(p.NSAPrefBands) > 0 {
		cmds = append(cmds, `AT+QNWPREFCFG="nsa_nr5g_band",`+joinBands(p.NSAPrefBands))
	}
	if len(p.SAPrefBands) > 0 {
		cmds = append(cmds, `AT+QNWPREFCFG="nr5g_band",`+joinBands(p.SAPrefBands))
	}
	return cmds, nil
}

func planResetProfile(p Params) ([]string, error) {
	if p.Profile != "modem_safe" {
		return nil, validationErrorf("unknown profile %q", p.Profile)
	}
	return []string{
		`AT+QCFG="lte/band","0"`,
		`AT+QCFG="nr5g/band","0"`,
		"AT+QNWLOCK=0",
		`AT+QCFG="lte/ca",1`,
		`AT+QCFG="nr5g/ca",1`,
		`AT+QNWPREFCFG="roam_pref",255`,
		`AT+QCFG="usbnet",1`,
	}, nil
}
