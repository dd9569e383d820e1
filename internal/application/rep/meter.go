package rep

// AverageMeter tracks a running average of a scalar, typically the loss of
// the current epoch.
type AverageMeter struct {
	val   float64
	sum   float64
	count int
}

// Reset clears the meter.
func (m *AverageMeter) Reset() { *m = AverageMeter{} }

// Update records one observation.
func (m *AverageMeter) Update(v float64) {
	m.val = v
	m.sum += v
	m.count++
}

// Last returns the most recent observation.
func (m *AverageMeter) Last() float64 { return m.val }

// Average returns the mean of all observations since the last reset.
func (m *AverageMeter) Average() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Count returns the number of observations since the last reset.
func (m *AverageMeter) Count() int { return m.count }
