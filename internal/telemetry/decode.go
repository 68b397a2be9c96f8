package telemetry

import (
	"regexp"
	"strconv"
	"strings"
)

// noValue is the firmware's "no measurement" sentinel for signal fields.
const noValue = -32768

// splitCSV tokenizes one AT reply payload. Commas inside double quotes
// do not split, doubled quotes escape a literal quote, and fully quoted
// tokens lose their outer quotes.
func splitCSV(payload string) []string {
	s := strings.TrimSpace(payload)
	var tokens []string
	var buf strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			if i+1 < len(s) && s[i+1] == '"' {
				buf.WriteByte('"')
				i++
				continue
			}
			inQuote = !inQuote
		case ch == ',' && !inQuote:
			tokens = append(tokens, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteByte(ch)
		}
	}
	tokens = append(tokens, strings.TrimSpace(buf.String()))
	return tokens
}

// afterColon returns the payload following the response prefix, so the
// first token of a +QENG line is its quoted tag.
func afterColon(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return strings.TrimSpace(line)
}

func toInt(tok string) *int {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(tok), `"'`))
	if s == "" || s == "-" {
		return nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return nil
	}
	n := int(v)
	return &n
}

func toIntHex(tok string) *int64 {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(tok), `"'`))
	if s == "" || s == "-" {
		return nil
	}
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return nil
	}
	return &v
}

// signal drops the firmware's no-measurement sentinel.
func signalValue(tok string) *int {
	v := toInt(tok)
	if v == nil || *v == noValue {
		return nil
	}
	return v
}

func findLine(lines []string, prefix string) string {
	for _, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), prefix) {
			return ln
		}
	}
	return ""
}

// scsCodeToKHz maps the NR subcarrier spacing code to kHz.
var scsCodeToKHz = map[int]int{0: 15, 1: 30, 2: 60, 3: 120, 4: 240}

// bandwidthToMHz converts an LTE bandwidth code to MHz. Values below
// 100 that are not codes are taken as MHz already.
func bandwidthToMHz(code int) *int {
	m := map[int]int{6: 1, 15: 3, 25: 5, 50: 10, 75: 15, 100: 20}
	if v, ok := m[code]; ok {
		return &v
	}
	if code < 100 {
		return &code
	}
	return nil
}

// DecodeServing parses AT+QENG="servingcell" output, trying the RAT
// shapes in order SA, NSA, LTE.
func DecodeServing(lines []string) *Serving {
	s := decodeServingRAT(lines)
	s.Band = servingBandLabel(s)
	return s
}

func decodeServingRAT(lines []string) *Serving {
	if sa := decodeServingSA(lines); sa != nil {
		return &Serving{RAT: "SA", SA: sa}
	}
	if lte, nr := decodeServingNSA(lines); lte != nil || nr != nil {
		return &Serving{RAT: "NSA", NSA: lte, NR: nr}
	}
	if lte := decodeServingLTE(lines); lte != nil {
		return &Serving{RAT: "LTE", LTE: lte}
	}
	return &Serving{RAT: "UNKNOWN"}
}

func decodeServingSA(lines []string) *ServingSA {
	ln := findLine(lines, `+QENG: "servingcell"`)
	if ln == "" {
		return nil
	}
	toks := splitCSV(afterColon(ln))
	if len(toks) < 17 {
		return nil
	}
	if !strings.Contains(strings.ToUpper(toks[2]), "NR5G") {
		return nil
	}
	sa := &ServingSA{
		State:   toks[1],
		Duplex:  toks[3],
		MCC:     toks[4],
		MNC:     toks[5],
		CellID:  toIntHex(toks[6]),
		PCID:    toInt(toks[7]),
		TAC:     toks[8],
		NRARFCN: toInt(toks[9]),
		Band:    toks[10],
		DLBWMHz: toInt(toks[11]),
		RSRP:    signalValue(toks[12]),
		RSRQ:    signalValue(toks[13]),
		SINR:    signalValue(toks[14]),
		Srxlev:  toInt(toks[16]),
	}
	if code := toInt(toks[15]); code != nil {
		if khz, ok := scsCodeToKHz[*code]; ok {
			sa.SCSKHz = &khz
		}
	}
	return sa
}

func decodeServingNSA(lines []string) (*ServingNSA, *ServingNR) {
	var lteLine, nrLine string
	for _, s := range lines {
		st := strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(st, `+QENG: "LTE"`):
			lteLine = s
		case strings.HasPrefix(st, `+QENG: "NR5G-NSA"`):
			nrLine = s
		}
	}
	if lteLine == "" || nrLine == "" {
		return nil, nil
	}

	toks := splitCSV(afterColon(lteLine))
	if len(toks) < 18 {
		return nil, nil
	}
	lte := &ServingNSA{
		MCC:     toInt(toks[2]),
		MNC:     toInt(toks[3]),
		CellID:  toInt(toks[4]),
		PCID:    toInt(toks[5]),
		EARFCN:  toInt(toks[6]),
		Band:    toInt(toks[7]),
		ULBWMHz: toInt(toks[8]),
		DLBWMHz: toInt(toks[9]),
		TAC:     toInt(toks[10]),
		RSRP:    signalValue(toks[11]),
		RSRQ:    signalValue(toks[12]),
		RSSI:    toInt(toks[13]),
		SINR:    signalValue(toks[14]),
		CQI:     toInt(toks[15]),
		TxPower: toInt(toks[16]),
		Srxlev:  toInt(toks[17]),
	}
	if toks[1] == "TDD" || toks[1] == "FDD" {
		lte.Duplex = toks[1]
	}

	nrToks := splitCSV(afterColon(nrLine))
	if len(nrToks) < 11 {
		return lte, nil
	}
	nr := &ServingNR{
		MCC:     toInt(nrToks[1]),
		MNC:     toInt(nrToks[2]),
		PCID:    toInt(nrToks[3]),
		RSRP:    signalValue(nrToks[4]),
		SINR:    signalValue(nrToks[5]),
		RSRQ:    signalValue(nrToks[6]),
		NRARFCN: toInt(nrToks[7]),
		Band:    toInt(nrToks[8]),
		DLBWMHz: toInt(nrToks[9]),
		SCSKHz:  toInt(nrToks[10]),
	}
	return lte, nr
}

func decodeServingLTE(lines []string) *ServingLTE {
	var ln string
	for _, s := range lines {
		st := strings.TrimSpace(s)
		if strings.HasPrefix(st, `+QENG: "servingcell"`) && strings.Contains(st, `"LTE"`) {
			ln = s
			break
		}
	}
	if ln == "" {
		return nil
	}
	toks := splitCSV(afterColon(ln))
	if len(toks) < 20 {
		return nil
	}
	lte := &ServingLTE{
		State:   toks[1],
		MCC:     toInt(toks[4]),
		MNC:     toInt(toks[5]),
		CellID:  toInt(toks[6]),
		PCID:    toInt(toks[7]),
		EARFCN:  toInt(toks[8]),
		Band:    toInt(toks[9]),
		ULBWMHz: toInt(toks[10]),
		DLBWMHz: toInt(toks[11]),
		TAC:     toInt(toks[12]),
		RSRP:    signalValue(toks[13]),
		RSRQ:    signalValue(toks[14]),
		RSSI:    toInt(toks[15]),
		SINR:    signalValue(toks[16]),
		CQI:     toInt(toks[17]),
		TxPower: toInt(toks[18]),
		Srxlev:  toInt(toks[19]),
	}
	if toks[3] == "TDD" || toks[3] == "FDD" {
		lte.Duplex = toks[3]
	}
	return lte
}

var regStatRe = regexp.MustCompile(`REG:\s*\d+\s*,\s*(\d+)`)

var regStatText = map[int]string{
	0:  "not registered / MT is not currently searching",
	1:  "registered (home)",
	2:  "searching",
	3:  "registration denied",
	4:  "unknown",
	5:  "registered (roaming)",
	6:  "registered for SMS only",
	7:  "registered for CSFB or SMS only",
	8:  "attached for emergency only",
	9:  "registered (CSFB not preferred)",
	10: "registered (home, emergency only)",
}

func decodeRegStat(lines []string) (*int, string) {
	for _, ln := range lines {
		m := regStatRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return &v, regStatText[v]
	}
	return nil, ""
}

// DecodeRegistration combines the EPS, 5G and GPRS registration
// queries into one record.
func DecodeRegistration(cereg, c5greg, cgreg []string) *Registration {
	r := &Registration{}
	r.EPS, r.EPSText = decodeRegStat(cereg)
	r.NR5G, r.NR5GText = decodeRegStat(c5greg)
	r.GPRS, r.GPRSText = decodeRegStat(cgreg)
	if r.EPS == nil && r.NR5G == nil && r.GPRS == nil {
		return nil
	}
	return r
}

// DecodeQNWInfo extracts the access technology and operator from
// AT+QNWINFO.
func DecodeQNWInfo(lines []string) (*Mode, *Operator) {
	ln := findLine(lines, "+QNWINFO:")
	if ln == "" {
		return nil, nil
	}
	toks := splitCSV(afterColon(ln))
	if len(toks) < 2 {
		return nil, nil
	}
	mode := &Mode{}
	rat := strings.ToUpper(toks[0])
	switch {
	case strings.Contains(rat, "NR5G") && strings.Contains(rat, "TDD"):
		mode.RAT, mode.Duplex = "SA", "TDD"
	case strings.Contains(rat, "NR5G") && strings.Contains(rat, "FDD"):
		mode.RAT, mode.Duplex = "SA", "FDD"
	case strings.Contains(rat, "LTE"):
		mode.RAT = "LTE"
	default:
		mode.RAT = rat
	}
	op := &Operator{Name: toks[1]}
	return mode, op
}

var copsRe = regexp.MustCompile(`\+COPS:\s*\d+,\s*\d+,\s*"([^"]+)"`)

// DecodeCOPS extracts the long operator name from AT+COPS?.
func DecodeCOPS(lines []string) string {
	for _, ln := range lines {
		if m := copsRe.FindStringSubmatch(ln); m != nil {
			return m[1]
		}
	}
	return ""
}

// decodeFirstSignal takes the first CSV value after a +QRSRP style
// prefix, dropping the no-measurement sentinel.
func decodeFirstSignal(lines []string, prefix string) *int {
	ln := findLine(lines, prefix)
	if ln == "" {
		return nil
	}
	toks := splitCSV(afterColon(ln))
	if len(toks) == 0 {
		return nil
	}
	return signalValue(toks[0])
}

// DecodeSignal assembles the aggregate signal block from the QRSRP,
// QRSRQ and QSINR replies.
func DecodeSignal(qrsrp, qrsrq, qsinr []string) *Signal {
	s := &Signal{
		RSRP: decodeFirstSignal(qrsrp, "+QRSRP:"),
		RSRQ: decodeFirstSignal(qrsrq, "+QRSRQ:"),
		SINR: decodeFirstSignal(qsinr, "+QSINR:"),
	}
	if s.RSRP == nil && s.RSRQ == nil && s.SINR == nil {
		return nil
	}
	return s
}

var qtempRe = regexp.MustCompile(`\+QTEMP:\s*"([^"]+)"\s*,\s*"(-?\d+)"`)

// qtempAlias groups firmware sensor names into the categories the
// snapshot exposes.
var qtempAlias = map[string][2]string{
	"modem-ambient-usr":   {"ambient", ""},
	"modem-skin-usr":      {"ambient", ""},
	"xo-therm-usr":        {"ambient", ""},
	"mmw0-usr":            {"mmw", ""},
	"mmw1-usr":            {"mmw", ""},
	"sdx-pa0-usr":         {"pa", "pa0"},
	"sdx-pa1-usr":         {"pa", "pa1"},
	"sdx-pa2-usr":         {"pa", "pa2"},
	"pa-therm-usr":        {"pa", "pa"},
	"cpuss-0-usr":         {"baseband", "cpu0"},
	"cpuss-1-usr":         {"baseband", "cpu1"},
	"cpuss-2-usr":         {"baseband", "cpu2"},
	"cpuss-3-usr":         {"baseband", "cpu3"},
	"modem-lte-sub6-pa1":  {"pa", "lte_pa1"},
	"modem-lte-sub6-pa2":  {"pa", "lte_pa2"},
	"modem-sdr0-pa0":      {"pa", "sdr0_pa0"},
	"modem-sdr0-pa1":      {"pa", "sdr0_pa1"},
	"modem-sdr0-pa2":      {"pa", "sdr0_pa2"},
	"modem-sdr1-pa0":      {"pa", "sdr1_pa0"},
	"modem-sdr1-pa1":      {"pa", "sdr1_pa1"},
	"modem-sdr1-pa2":      {"pa", "sdr1_pa2"},
	"aoss-0-usr":          {"baseband", "aoss0"},
	"mdm-q6-usr":          {"baseband", "q6"},
	"ipa-usr":             {"baseband", "ipa"},
	"cpu-0-0-usr":         {"baseband", "cpu0"},
	"mdmss-0-usr":         {"baseband", "mdmss0"},
	"mdmss-1-usr":         {"baseband", "mdmss1"},
	"mdmss-2-usr":         {"baseband", "mdmss2"},
	"mdmss-3-usr":         {"baseband", "mdmss3"},
}

// DecodeQTemp parses AT+QTEMP, grouping sensors into ambient, mmw, PA
// and baseband sets. A -273 reading means the sensor is absent.
func DecodeQTemp(lines []string) *Temperatures {
	t := &Temperatures{
		PA:       map[string]int{},
		Baseband: map[string]int{},
		Raw:      map[string]int{},
	}
	seen := false
	for _, ln := range lines {
		m := qtempRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		seen = true
		key := m[1]
		v, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		t.Raw[key] = v
		if v == -273 {
			continue
		}
		grp, ok := qtempAlias[key]
		if !ok {
			t.Baseband[strings.ReplaceAll(key, "-", "_")] = v
			continue
		}
		switch grp[0] {
		case "ambient":
			if t.Ambient == nil {
				val := v
				t.Ambient = &val
			}
		case "mmw":
			if t.MMW == nil {
				val := v
				t.MMW = &val
			}
		case "pa":
			t.PA[grp[1]] = v
		case "baseband":
			t.Baseband[grp[1]] = v
		}
	}
	if !seen {
		return nil
	}
	return t
}

var qcaPCCRe = regexp.MustCompile(`\+QCAINFO:\s*"PCC"\s*,\s*([^,]+)\s*,\s*([^,]+)\s*,\s*"([^"]+)"\s*,\s*([^,]+)\s*,\s*([^,]+)\s*,\s*([^,]+)\s*,\s*([^,]+)\s*,\s*([^,]+)\s*,\s*([^,\r\n]+)`)

// DecodeQCAInfo parses AT+QCAINFO into the carrier aggregation view.
// SCC rows vary between firmware revisions, so only recognizable
// fields are filled.
func DecodeQCAInfo(lines []string) *CarrierAggregation {
	ca := &CarrierAggregation{Secondary: []Carrier{}}
	for _, ln := range lines {
		if !strings.Contains(ln, "+QCAINFO") {
			continue
		}
		if m := qcaPCCRe.FindStringSubmatch(ln); m != nil {
			pcc := &Carrier{
				Index: 0,
				Band:  strings.TrimSpace(m[3]),
				ARFCN: toInt(m[1]),
				PCI:   toInt(m[5]),
				RSRP:  signalValue(m[6]),
				RSRQ:  signalValue(m[7]),
			}
			if bw := toInt(m[2]); bw != nil {
				pcc.DLBWMHz = bandwidthToMHz(*bw)
			}
			ca.Primary = pcc
			continue
		}
		parts := splitCSV(afterColon(ln))
		if len(parts) == 0 {
			continue
		}
		head := strings.ToUpper(parts[0])
		switch {
		case head == "PCC" && ca.Primary == nil && len(parts) >= 4:
			pcc := &Carrier{Index: 0, ARFCN: toInt(parts[1]), Band: parts[3]}
			if bw := toInt(parts[2]); bw != nil {
				pcc.DLBWMHz = bandwidthToMHz(*bw)
			}
			if len(parts) > 5 {
				pcc.PCI = toInt(parts[5])
			}
			if len(parts) > 6 {
				pcc.RSRP = signalValue(parts[6])
			}
			if len(parts) > 7 {
				pcc.RSRQ = signalValue(parts[7])
			}
			ca.Primary = pcc
		case strings.HasPrefix(head, "SCC"):
			ca.Secondary = append(ca.Secondary, decodeSCC(parts, len(ca.Secondary)+1))
		}
	}
	if ca.Primary == nil && len(ca.Secondary) == 0 {
		return nil
	}
	ca.Summary = buildCASummary(ca)
	return ca
}

func decodeSCC(parts []string, fallbackIdx int) Carrier {
	idx := fallbackIdx
	if digits := strings.TrimFunc(parts[0], func(r rune) bool { return r < '0' || r > '9' }); digits != "" {
		if v, err := strconv.Atoi(digits); err == nil {
			idx = v
		}
	}
	c := Carrier{Index: idx}
	if len(parts) >= 3 {
		c.RAT = parts[1]
		c.Band = parts[2]
	}
	for i := 3; i < len(parts); i++ {
		t := strings.ToLower(parts[i])
		switch {
		case strings.Contains(t, "bw") && strings.Contains(t, "dl"):
			if kv := strings.SplitN(strings.ReplaceAll(t, "=", ":"), ":", 2); len(kv) == 2 {
				c.DLBWMHz = toInt(strings.TrimSuffix(strings.TrimSpace(kv[1]), "mhz"))
			}
		case strings.HasPrefix(t, "pci="):
			c.PCI = toInt(parts[i][4:])
		case strings.Contains(t, "arfcn"):
			if j := strings.IndexByte(t, '='); j >= 0 {
				c.ARFCN = toInt(parts[i][j+1:])
			}
		default:
			v := toInt(parts[i])
			if v == nil {
				continue
			}
			switch {
			case c.ARFCN == nil && *v > 1000:
				c.ARFCN = v
			case c.RSRP == nil && *v < 0:
				c.RSRP = v
			case c.RSRQ == nil && *v < 0:
				c.RSRQ = v
			case c.SINR == nil:
				c.SINR = v
			}
		}
	}
	return c
}

func buildCASummary(ca *CarrierAggregation) string {
	carrierText := func(c *Carrier) string {
		switch {
		case c.Band != "" && c.ARFCN != nil:
			return c.Band + "@" + strconv.Itoa(*c.ARFCN)
		case c.Band != "":
			return c.Band
		case c.ARFCN != nil:
			return strconv.Itoa(*c.ARFCN)
		}
		return ""
	}
	var b strings.Builder
	if ca.Primary != nil {
		rat := ca.Primary.RAT
		if rat == "" {
			rat = "NR/LTE"
		}
		b.WriteString(rat + " PCC")
		if t := carrierText(ca.Primary); t != "" {
			b.WriteString(" " + t)
		}
		if ca.Primary.DLBWMHz != nil {
			b.WriteString(" (BW " + strconv.Itoa(*ca.Primary.DLBWMHz) + "MHz)")
		}
	} else {
		b.WriteString("PCC ?")
	}
	var parts []string
	for i := range ca.Secondary {
		if t := carrierText(&ca.Secondary[i]); t != "" {
			parts = append(parts, t)
		}
	}
	b.WriteString(", SCC x" + strconv.Itoa(len(ca.Secondary)))
	if len(parts) > 0 {
		b.WriteString(": " + strings.Join(parts, ", "))
	}
	return b.String()
}

// DecodeNeighbors parses AT+QENG="neighbourcell" rows for both RATs.
func DecodeNeighbors(lines []string) *Neighbors {
	n := &Neighbors{LTE: []NeighborLTE{}, NR: []NeighborNR{}}
	for _, ln := range lines {
		if !strings.Contains(ln, "+QENG") || !strings.Contains(strings.ToLower(ln), "neighbourcell") {
			continue
		}
		toks := splitCSV(afterColon(ln))
		up := make([]string, len(toks))
		for i, t := range toks {
			up[i] = strings.ToUpper(t)
		}
		if i := indexOf(up, "LTE"); i >= 0 && i+4 < len(toks) {
			row := NeighborLTE{
				EARFCN: toInt(toks[i+1]),
				PCI:    toInt(toks[i+2]),
				RSRQ:   signalValue(toks[i+3]),
				RSRP:   signalValue(toks[i+4]),
			}
			row.Band = GuessLTEBand(row.EARFCN)
			// Some firmware swaps RSRP and RSRQ columns.
			if row.RSRP != nil && row.RSRQ != nil && abs(*row.RSRP) < 10 && abs(*row.RSRQ) > 10 {
				row.RSRP, row.RSRQ = row.RSRQ, row.RSRP
			}
			if row.EARFCN != nil && row.PCI != nil {
				n.LTE = append(n.LTE, row)
			}
			continue
		}
		if i := indexOf(up, "NR5G"); i >= 0 {
			j := i + 1
			var scs *int
			if j < len(toks) {
				if v := toInt(toks[j]); v != nil && (*v == 15 || *v == 30 || *v == 60 || *v == 120) {
					scs = v
					j++
				}
			}
			if j+3 < len(toks) {
				row := NeighborNR{
					NRARFCN: toInt(toks[j]),
					PCI:     toInt(toks[j+1]),
					RSRP:    signalValue(toks[j+2]),
					RSRQ:    signalValue(toks[j+3]),
					SCSKHz:  scs,
				}
				row.Band = GuessNRBand(row.NRARFCN)
				if row.NRARFCN != nil && row.PCI != nil {
					n.NR = append(n.NR, row)
				}
			}
		}
	}
	if len(n.LTE) == 0 && len(n.NR) == 0 {
		return nil
	}
	return n
}

func indexOf(toks []string, want string) int {
	for i, t := range toks {
		if t == want {
			return i
		}
	}
	return -1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

var qnetdevRe = regexp.MustCompile(`\+QNETDEVSTATUS:\s*([^,]+),\s*([^,]+),\s*([^,]+),\s*(\d+),\s*(\d+)`)

// DecodeNetDev parses the AT+QNETDEVSTATUS interface counters.
func DecodeNetDev(lines []string) *NetDev {
	for _, ln := range lines {
		m := qnetdevRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		rx, err1 := strconv.ParseInt(m[4], 10, 64)
		tx, err2 := strconv.ParseInt(m[5], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		nd := &NetDev{
			Iface:   strings.TrimSpace(m[1]),
			State:   strings.TrimSpace(m[2]),
			RxBytes: &rx,
			TxBytes: &tx,
		}
		ip := strings.TrimSpace(m[3])
		if ip != "" && ip != "0.0.0.0" && ip != "N/A" {
			nd.IPv4 = ip
		}
		return nd
	}
	return nil
}

var (
	cgdcontRe   = regexp.MustCompile(`\+CGDCONT:\s*(\d+)\s*,\s*"([^"]*)"\s*,\s*"([^"]*)"`)
	cgactRe     = regexp.MustCompile(`\+CGACT:\s*(\d+)\s*,\s*(\d+)`)
	cgcontrdpRe = regexp.MustCompile(`\+CGCONTRDP:\s*(\d+)`)
	quotedIPRe  = regexp.MustCompile(`"([0-9a-fA-F:.]+)"`)
	qidnscfgRe  = regexp.MustCompile(`\+QIDNSCFG:\s*"IPV?6?"\s*,\s*"([^"]*)"(?:\s*,\s*"([^"]*)")?`)
)

// DecodeSession merges the CGDCONT, CGACT, CGCONTRDP and QIDNSCFG
// views into one PDP context list. The default context is the first
// active one.
func DecodeSession(cgdcont, cgact, cgcontrdp, qidnscfg []string) *Session {
	byCID := map[int]*PDPContext{}
	var order []int
	get := func(cid int) *PDPContext {
		if p, ok := byCID[cid]; ok {
			return p
		}
		p := &PDPContext{CID: cid}
		byCID[cid] = p
		order = append(order, cid)
		return p
	}

	for _, ln := range cgdcont {
		if m := cgdcontRe.FindStringSubmatch(ln); m != nil {
			cid, _ := strconv.Atoi(m[1])
			p := get(cid)
			p.Type = m[2]
			p.APN = m[3]
		}
	}
	for _, ln := range cgact {
		if m := cgactRe.FindStringSubmatch(ln); m != nil {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			// Firmware differs in field order, the larger value is
			// the cid when states are 0/1.
			cid, state := a, b
			if b > a {
				cid, state = b, a
			}
			p := get(cid)
			p.State = &state
		}
	}
	for _, ln := range cgcontrdp {
		m := cgcontrdpRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		cid, _ := strconv.Atoi(m[1])
		p := get(cid)
		// Quoted strings that look like addresses: first is the local
		// IP, the last two are the DNS servers.
		ips := quotedIPRe.FindAllStringSubmatch(ln, -1)
		if len(ips) >= 1 {
			p.IP = ips[0][1]
		}
		if len(ips) >= 3 {
			p.DNS1 = ips[len(ips)-2][1]
			p.DNS2 = ips[len(ips)-1][1]
		}
	}

	var dns1, dns2 string
	for _, ln := range qidnscfg {
		if m := qidnscfgRe.FindStringSubmatch(ln); m != nil {
			if dns1 == "" {
				dns1 = m[1]
				if len(m) > 2 {
					dns2 = m[2]
				}
			}
		}
	}

	if len(order) == 0 {
		return nil
	}
	s := &Session{PDP: make([]PDPContext, 0, len(order))}
	for _, cid := range order {
		p := byCID[cid]
		if p.DNS1 == "" && dns1 != "" {
			p.DNS1 = dns1
		}
		if p.DNS2 == "" && dns2 != "" {
			p.DNS2 = dns2
		}
		if s.DefaultCID == nil && p.State != nil && *p.State == 1 {
			cid := p.CID
			s.DefaultCID = &cid
		}
		s.PDP = append(s.PDP, *p)
	}
	return s
}
