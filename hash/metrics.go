package hash

/*
Metrics receives counters for the operations Index performs, so a host
database can wire the index's activity into its own observability stack
without this package importing one directly. A plain counter interface
rather than any specific metrics library keeps this package
dependency-free; callers supply their own implementation backed by
whatever metrics library they use.
*/
type Metrics interface {
	Lookups(n int)
	Inserts(n int)
	Removes(n int)
	Splits(n int)
	Merges(n int)
}

type noopMetrics struct{}

func (noopMetrics) Lookups(int) {}
func (noopMetrics) Inserts(int) {}
func (noopMetrics) Removes(int) {}
func (noopMetrics) Splits(int)  {}
func (noopMetrics) Merges(int)  {}
