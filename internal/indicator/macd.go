package indicator

// MACD line parameters: fast EMA(8) minus slow EMA(17), signal EMA(9).
const (
	macdFastSpan   = 8
	macdSlowSpan   = 17
	macdSignalSpan = 9
)

// MACD computes the MACD line (EMA(8) - EMA(17)) and its EMA(9) signal
// line over the close series.
func MACD(closes []float64) (macd, signal []float64) {
	fast := EMA(closes, macdFastSpan)
	slow := EMA(closes, macdSlowSpan)
	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = fast[i] - slow[i]
	}
	signal = EMA(macd, macdSignalSpan)
	return macd, signal
}
