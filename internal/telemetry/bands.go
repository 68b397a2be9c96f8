package telemetry

import (
	"strconv"
	"strings"
)

// PrettyBand normalizes a raw band token into a display label, e.g.
// "n41" or "41" under an NR RAT becomes "NR5G BAND 41".
func PrettyBand(rat, raw string) string {
	if raw == "" {
		return ""
	}
	if strings.Contains(strings.ToUpper(rat), "NR") {
		s := strings.ReplaceAll(strings.ToUpper(raw), "NR5G BAND ", "")
		s = strings.ReplaceAll(s, "N", "")
		return "NR5G BAND " + s
	}
	s := strings.ReplaceAll(strings.ToUpper(raw), "LTE BAND ", "")
	s = strings.ReplaceAll(s, "B", "")
	return "LTE BAND " + s
}

// servingBandLabel derives the unified band label for whichever leg of
// the serving descriptor is populated. NSA prefers the NR leg and
// falls back through the ARFCN guess when the reply omits the band.
func servingBandLabel(s *Serving) string {
	if s == nil {
		return ""
	}
	switch {
	case s.SA != nil:
		raw := s.SA.Band
		if raw == "" {
			raw = GuessNRBand(s.SA.NRARFCN)
		}
		return PrettyBand("NR", raw)
	case s.NR != nil && (s.NR.Band != nil || s.NR.NRARFCN != nil):
		raw := intBand(s.NR.Band)
		if raw == "" {
			raw = GuessNRBand(s.NR.NRARFCN)
		}
		return PrettyBand("NR", raw)
	case s.NSA != nil:
		raw := intBand(s.NSA.Band)
		if raw == "" {
			raw = GuessLTEBand(s.NSA.EARFCN)
		}
		return PrettyBand("LTE", raw)
	case s.LTE != nil:
		raw := intBand(s.LTE.Band)
		if raw == "" {
			raw = GuessLTEBand(s.LTE.EARFCN)
		}
		return PrettyBand("LTE", raw)
	}
	return ""
}

func intBand(b *int) string {
	if b == nil {
		return ""
	}
	return strconv.Itoa(*b)
}

// GuessLTEBand maps an EARFCN to its band label for the ranges this
// hardware is deployed on. Unknown ranges return "".
func GuessLTEBand(earfcn *int) string {
	if earfcn == nil {
		return ""
	}
	n := *earfcn
	switch {
	case n >= 0 && n <= 599:
		return "B1"
	case n >= 1200 && n <= 1949:
		return "B3"
	case n >= 37750 && n <= 38249:
		return "B34"
	case n >= 38250 && n <= 38649:
		return "B38"
	case n >= 38650 && n <= 39649:
		return "B39"
	case n >= 39650 && n <= 41589:
		return "B40"
	case n >= 41590 && n <= 43589:
		return "B41"
	}
	return ""
}

// GuessNRBand maps an NR-ARFCN to its band label for the common
// deployment ranges.
func GuessNRBand(nrarfcn *int) string {
	if nrarfcn == nil {
		return ""
	}
	n := *nrarfcn
	switch {
	case n >= 499200 && n <= 537999:
		return "n41"
	case n >= 620000 && n <= 680000:
		return "n78"
	case n >= 151600 && n <= 160600:
		return "n28"
	case n >= 422000 && n <= 434000:
		return "n1"
	}
	return ""
}
