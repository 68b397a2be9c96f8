package telemetry

// Quality buckets for the aggregate signal rating.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
)

// rateQuality buckets RSRP, then lets SINR promote or demote one step.
// goodSINR is the promotion threshold, which differs between LTE and NR.
func rateQuality(rsrp, sinr *int, goodSINR int) string {
	q := QualityFair
	if rsrp != nil {
		switch {
		case *rsrp >= -80:
			q = QualityExcellent
		case *rsrp >= -90:
			q = QualityGood
		case *rsrp >= -100:
			q = QualityFair
		default:
			q = QualityPoor
		}
	}
	if sinr != nil {
		if *sinr >= goodSINR && (q == QualityGood || q == QualityFair) {
			q = QualityExcellent
		} else if *sinr < 0 && (q == QualityGood || q == QualityExcellent) {
			q = QualityFair
		}
	}
	return q
}

// RateQualityLTE buckets an LTE measurement.
func RateQualityLTE(rsrp, sinr *int) string { return rateQuality(rsrp, sinr, 20) }

// RateQualityNR buckets an NR measurement. NR SINR runs lower than LTE
// for the same link quality, so the promotion threshold is relaxed.
func RateQualityNR(rsrp, sinr *int) string { return rateQuality(rsrp, sinr, 15) }
