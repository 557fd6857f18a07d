package evaluate

// Counts is a (tp, fp, fn) triple.
type Counts struct {
	TP int `json:"tp" yaml:"tp"`
	FP int `json:"fp" yaml:"fp"`
	FN int `json:"fn" yaml:"fn"`
}

// Add counts one outcome.
func (c *Counts) Add(o Outcome) {
	switch o {
	case TruePositive:
		c.TP++
	case FalsePositive:
		c.FP++
	case FalseNegative:
		c.FN++
	case Both:
		c.FP++
		c.FN++
	}
}

// Merge adds o into c.
func (c *Counts) Merge(o Counts) {
	c.TP += o.TP
	c.FP += o.FP
	c.FN += o.FN
}

// IsZero reports whether nothing was counted.
func (c Counts) IsZero() bool {
	return c == Counts{}
}

// Metrics are the ratios derived from Counts.
type Metrics struct {
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"`
}

// Compute derives metrics. Every ratio with a zero denominator is 0.
func Compute(c Counts) Metrics {
	var m Metrics
	m.Precision = ratio(c.TP, c.TP+c.FP)
	m.Recall = ratio(c.TP, c.TP+c.FN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.Accuracy = ratio(c.TP, c.TP+c.FP+c.FN)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// mean averages metrics.
func mean(ms []Metrics) Metrics {
	var out Metrics
	if len(ms) == 0 {
		return out
	}
	for _, m := range ms {
		out.Precision += m.Precision
		out.Recall += m.Recall
		out.F1 += m.F1
		out.Accuracy += m.Accuracy
	}
	n := float64(len(ms))
	out.Precision /= n
	out.Recall /= n
	out.F1 /= n
	out.Accuracy /= n
	return out
}
